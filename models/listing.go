package models

import "time"

// ListingRecord is the canonical real-estate listing persisted by the scraper.
// Optional fields are pointers: nil means the source did not carry the value.
type ListingRecord struct {
	ID              string     `json:"id"`
	PublicationDate *time.Time `json:"publication_date,omitempty"`
	IndexDate       *time.Time `json:"index_date,omitempty"`
	ExpirationDate  *time.Time `json:"expiration_date,omitempty"`
	ScrapedAt       time.Time  `json:"scraped_at"`

	Status       *string `json:"status,omitempty"`
	AdType       *string `json:"ad_type,omitempty"`
	CategoryID   *string `json:"category_id,omitempty"`
	CategoryName *string `json:"category_name,omitempty"`

	Title       *string  `json:"title,omitempty"`
	Description *string  `json:"description,omitempty"`
	URL         *string  `json:"url,omitempty"`
	Price       *float64 `json:"price,omitempty"`

	ImageCount *int     `json:"image_count,omitempty"`
	Images     []string `json:"images"`

	PropertyType     *string  `json:"property_type,omitempty"`
	Furnished        *string  `json:"furnished,omitempty"`
	Surface          *string  `json:"surface,omitempty"`
	Rooms            *string  `json:"rooms,omitempty"`
	Bedrooms         *string  `json:"bedrooms,omitempty"`
	ShowerRooms      *string  `json:"shower_rooms,omitempty"`
	Bathrooms        *string  `json:"bathrooms,omitempty"`
	ParkingSpaces    *string  `json:"parking_spaces,omitempty"`
	Levels           *string  `json:"levels,omitempty"`
	AvailableFrom    *string  `json:"available_from,omitempty"`
	ConstructionYear *string  `json:"construction_year,omitempty"`
	EnergyClass      *string  `json:"energy_class,omitempty"`
	GES              *string  `json:"ges,omitempty"`
	Elevator         *string  `json:"elevator,omitempty"`
	Floor            *string  `json:"floor,omitempty"`
	BuildingFloors   *string  `json:"building_floors,omitempty"`
	Outdoor          []string `json:"outdoor,omitempty"`
	ChargesIncluded  *string  `json:"charges_included,omitempty"`
	SecurityDeposit  *string  `json:"security_deposit,omitempty"`
	RentalCharges    *string  `json:"rental_charges,omitempty"`
	Features         []string `json:"features,omitempty"`

	Region       *string  `json:"region,omitempty"`
	RegionID     *string  `json:"region_id,omitempty"`
	City         *string  `json:"city,omitempty"`
	Zipcode      *string  `json:"zipcode,omitempty"`
	Department   *string  `json:"department,omitempty"`
	DepartmentID *string  `json:"department_id,omitempty"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
	Geohash      *string  `json:"geohash,omitempty"`

	AgencyName *string `json:"agency_name,omitempty"`
}

// RunState is the position of a scrape run in the pagination state machine.
type RunState string

const (
	StateFiltering RunState = "FILTERING"
	StatePage      RunState = "PAGE"
	StateDone      RunState = "DONE"
	StateFailed    RunState = "FAILED"
)

// RunReport summarizes one scrape run.
type RunReport struct {
	RunID           string    `json:"run_id"`
	State           RunState  `json:"state"`
	PagesVisited    int       `json:"pages_visited"`
	AdsSeen         int       `json:"ads_seen"`
	UniqueAds       int       `json:"unique_ads"`
	Duplicates      int       `json:"duplicates"`
	MappingFailures int       `json:"mapping_failures"`
	Saved           int       `json:"saved"`
	Partial         bool      `json:"partial"`
	StopReason      string    `json:"stop_reason,omitempty"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
	Error           string    `json:"error,omitempty"`
}

// InsightReport holds analytics computed over the records saved by a run.
type InsightReport struct {
	TotalListings   int
	PricedListings  int
	AveragePrice    float64
	MinPrice        float64
	MaxPrice        float64
	MostExpensive   *ListingRecord
	ListingsByCity  map[string]int
	ListingsByType  map[string]int
	AgenciesCovered int
}
