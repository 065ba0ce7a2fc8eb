// Search filter model definitions

package models

// MainCategory selects which category-specific filter group is shown.
type MainCategory string

const (
	MainCategoryNone        MainCategory = ""
	MainCategoryResidential MainCategory = "residential"
	MainCategoryCommercial  MainCategory = "commercial"
	MainCategoryIndustrial  MainCategory = "industrial"
	MainCategoryLand        MainCategory = "land"
)

// Valid reports whether c is one of the known categories or none.
func (c MainCategory) Valid() bool {
	switch c {
	case MainCategoryNone, MainCategoryResidential, MainCategoryCommercial,
		MainCategoryIndustrial, MainCategoryLand:
		return true
	}
	return false
}

var (
	ResidentialCategories = []string{"Casa Indipendente", "Appartamento", "Villa", "Loft", "Attico"}
	CommercialCategories  = []string{"Negozio", "Ufficio", "Ristorazione", "Locale_Commerciale"}
	IndustrialCategories  = []string{"Magazzino", "Capannone", "Fabbrica"}
	LandCategories        = []string{"Pascolo", "Edificabile", "Coltivabile"}
)

type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// DefaultPriceRange returns the price range preselected for a listing type.
func DefaultPriceRange(t ListingType) Range {
	if t == ListingTypeRent {
		return Range{Min: 0, Max: 2000}
	}
	return Range{Min: 0, Max: 500000}
}

type GeneralFilters struct {
	TransactionType ListingType `json:"transactionType"`
	PriceRange      Range       `json:"priceRange"`
	Size            Range       `json:"size"`
}

// Numeric fields are kept as strings as entered in the filter panel.
type ResidentialFilters struct {
	Category  string `json:"category"`
	Rooms     string `json:"rooms"`
	Bathrooms string `json:"bathrooms"`
	Floor     string `json:"floor"`
	Elevator  bool   `json:"elevator"`
	Pool      bool   `json:"pool"`
}

type CommercialFilters struct {
	Category         string `json:"category"`
	Bathrooms        string `json:"bathrooms"`
	EmergencyExit    bool   `json:"emergencyExit"`
	ConstructionDate string `json:"constructionDate"`
}

type IndustrialFilters struct {
	Category      string `json:"category"`
	CeilingHeight string `json:"ceilingHeight"`
	FireSystem    bool   `json:"fireSystem"`
	FloorLoad     string `json:"floorLoad"`
	Offices       string `json:"offices"`
	Structure     string `json:"structure"`
}

type LandFilters struct {
	Category string `json:"category"`
	SoilType string `json:"soilType"`
	Slope    string `json:"slope"`
}

// PropertyFilters is the full filter panel state. It is comparable with ==.
type PropertyFilters struct {
	General     GeneralFilters     `json:"general"`
	Residential ResidentialFilters `json:"residential"`
	Commercial  CommercialFilters  `json:"commercial"`
	Industrial  IndustrialFilters  `json:"industrial"`
	Land        LandFilters        `json:"land"`
}

// DefaultFilters returns the filters a fresh install starts with.
func DefaultFilters() PropertyFilters {
	return PropertyFilters{
		General: GeneralFilters{
			TransactionType: ListingTypeSale,
			PriceRange:      DefaultPriceRange(ListingTypeSale),
			Size:            Range{Min: 0, Max: 1000},
		},
		Residential: ResidentialFilters{Category: ResidentialCategories[0]},
		Commercial:  CommercialFilters{Category: CommercialCategories[0]},
		Industrial:  IndustrialFilters{Category: IndustrialCategories[0]},
		Land:        LandFilters{Category: LandCategories[0]},
	}
}
