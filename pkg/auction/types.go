package auction

// ListingResponse matches the auction list API response body
type ListingResponse struct {
	Result []Listing `json:"result"`
	Status int       `json:"status"`
}

// Listing is a single auction entry
type Listing struct {
	Item     ItemData   `json:"item"`
	Price    float64    `json:"price"`
	Seller   SellerData `json:"seller"`
	TimeLeft int64      `json:"time_left"`
}

// ItemData describes the listed stack. ID is a namespaced good id ("minecraft:diamond").
type ItemData struct {
	ID          string         `json:"id"`
	Count       int            `json:"count"`
	DisplayName string         `json:"display_name"`
	Lore        []string       `json:"lore"`
	Enchants    map[string]int `json:"enchants"`
}

// SellerData identifies who listed the entry
type SellerData struct {
	Name string `json:"name"`
	UUID string `json:"uuid"`
}

// SellerName returns the seller, or "Unknown" when the API omitted it
func (l Listing) SellerName() string {
	if l.Seller.Name == "" {
		return "Unknown"
	}
	return l.Seller.Name
}

// FetchResult is the outcome of a paginated fetch
type FetchResult struct {
	Listings []Listing
	// Pages counts pages that were fetched successfully
	Pages int
	// RateLimited is set when the server answered 429 and pagination stopped early
	RateLimited bool
	// Partial is set when a page after the first failed; Listings holds what came before it
	Partial bool
	// Cause holds the error that ended pagination early (nil on a clean finish)
	Cause error
}
