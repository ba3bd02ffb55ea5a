package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Amenity is a property feature managed by administrators.
type Amenity struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Property is a listing record. Price is a decimal string as serialized by
// the server.
type Property struct {
	ID           int64     `json:"id"`
	Owner        *Profile  `json:"owner,omitempty"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Price        string    `json:"price"`
	Location     string    `json:"location"`
	Latitude     *float64  `json:"latitude,omitempty"`
	Longitude    *float64  `json:"longitude,omitempty"`
	PropertyType string    `json:"property_type"`
	Images       []string  `json:"images"`
	Amenities    []Amenity `json:"amenities,omitempty"`
	CreatedAt    time.Time `json:"created_at,omitzero"`
	UpdatedAt    time.Time `json:"updated_at,omitzero"`
}

// PropertyInput is the writable subset of a listing.
type PropertyInput struct {
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Price        string   `json:"price"`
	Location     string   `json:"location"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
	PropertyType string   `json:"property_type"`
	Images       []string `json:"images,omitempty"`
	AmenityIDs   []int64  `json:"amenity_ids,omitempty"`
}

// PropertyFilter narrows a listing query. Zero-value fields are omitted.
type PropertyFilter struct {
	Type     string
	Location string
	MinPrice string
	MaxPrice string
	Search   string
	Ordering string
}

func (f PropertyFilter) query() url.Values {
	q := url.Values{}
	if f.Type != "" {
		q.Set("property_type", f.Type)
	}
	if f.Location != "" {
		q.Set("location", f.Location)
	}
	if f.MinPrice != "" {
		q.Set("min_price", f.MinPrice)
	}
	if f.MaxPrice != "" {
		q.Set("max_price", f.MaxPrice)
	}
	if f.Search != "" {
		q.Set("search", f.Search)
	}
	if f.Ordering != "" {
		q.Set("ordering", f.Ordering)
	}
	return q
}

// ListProperties returns listings matching the filter, newest first.
func (c *Client) ListProperties(ctx context.Context, filter PropertyFilter) ([]Property, error) {
	var props []Property
	if err := c.do(ctx, http.MethodGet, "properties/", filter.query(), nil, &props); err != nil {
		return nil, err
	}
	return props, nil
}

// GetProperty returns one listing by ID.
func (c *Client) GetProperty(ctx context.Context, id int64) (*Property, error) {
	var p Property
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("properties/%d/", id), nil, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateProperty posts a new listing owned by the current user.
func (c *Client) CreateProperty(ctx context.Context, in PropertyInput) (*Property, error) {
	var p Property
	if err := c.do(ctx, http.MethodPost, "properties/", nil, in, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdateProperty replaces a listing's writable fields. Owner or admin only
// on the server side.
func (c *Client) UpdateProperty(ctx context.Context, id int64, in PropertyInput) (*Property, error) {
	var p Property
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("properties/%d/", id), nil, in, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// DeleteProperty removes a listing. Owner or admin only on the server side.
func (c *Client) DeleteProperty(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("properties/%d/", id), nil, nil, nil)
}

// ListAmenities returns all amenities. Admin only on the server side.
func (c *Client) ListAmenities(ctx context.Context) ([]Amenity, error) {
	var amenities []Amenity
	if err := c.do(ctx, http.MethodGet, "amenities/", nil, nil, &amenities); err != nil {
		return nil, err
	}
	return amenities, nil
}

// CreateAmenity adds a new amenity. Admin only on the server side.
func (c *Client) CreateAmenity(ctx context.Context, name string) (*Amenity, error) {
	var a Amenity
	in := map[string]string{"name": name}
	if err := c.do(ctx, http.MethodPost, "amenities/", nil, in, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// DeleteAmenity removes an amenity by ID. Admin only on the server side.
func (c *Client) DeleteAmenity(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("amenities/%d/", id), nil, nil, nil)
}
