package leboncoin

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMissingID is returned for an ad without a usable list_id.
var ErrMissingID = errors.New("leboncoin: ad has no list_id")

// SearchPayload is one page of search results. Ads stay raw so that a single
// malformed ad cannot spoil its siblings.
type SearchPayload struct {
	Total int               `json:"total"`
	Ads   []json.RawMessage `json:"ads"`
}

// RawAd is the subset of a search-result ad the mapper reads.
type RawAd struct {
	ListID               FlexString      `json:"list_id"`
	FirstPublicationDate *string         `json:"first_publication_date"`
	IndexDate            *string         `json:"index_date"`
	ExpirationDate       *string         `json:"expiration_date"`
	Status               *string         `json:"status"`
	AdType               *string         `json:"ad_type"`
	Subject              *string         `json:"subject"`
	Body                 *string         `json:"body"`
	URL                  *string         `json:"url"`
	CategoryID           *FlexString     `json:"category_id"`
	CategoryName         *string         `json:"category_name"`
	Price                json.RawMessage `json:"price"`
	Images               *RawImages      `json:"images"`
	Attributes           []RawAttribute  `json:"attributes"`
	Location             *RawLocation    `json:"location"`
	Owner                *RawOwner       `json:"owner"`
}

type RawImages struct {
	NbImages  *int     `json:"nb_images"`
	URLs      []string `json:"urls"`
	URLsLarge []string `json:"urls_large"`
}

type RawAttribute struct {
	Key         string      `json:"key"`
	KeyLabel    string      `json:"key_label"`
	ValueLabel  *FlexString `json:"value_label"`
	ValuesLabel []string    `json:"values_label"`
}

type RawLocation struct {
	RegionID       *FlexString `json:"region_id"`
	RegionName     *string     `json:"region_name"`
	DepartmentID   *FlexString `json:"department_id"`
	DepartmentName *string     `json:"department_name"`
	City           *string     `json:"city"`
	Zipcode        *FlexString `json:"zipcode"`
	Lat            *FlexFloat  `json:"lat"`
	Lng            *FlexFloat  `json:"lng"`
}

type RawOwner struct {
	Name *string `json:"name"`
	Type *string `json:"type"`
}

// DecodeAd decodes one raw ad and checks it has an identifier.
func DecodeAd(raw json.RawMessage) (*RawAd, error) {
	var ad RawAd
	if err := json.Unmarshal(raw, &ad); err != nil {
		return nil, fmt.Errorf("decode ad: %w", err)
	}
	if ad.ID() == "" {
		return nil, ErrMissingID
	}
	return &ad, nil
}

// ID returns the stringified list_id.
func (a *RawAd) ID() string {
	return strings.TrimSpace(string(a.ListID))
}

// decodeSearchPayload parses a search API body and reports whether it
// carries at least one ad.
func decodeSearchPayload(body []byte) (*SearchPayload, bool) {
	var p SearchPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, false
	}
	return &p, len(p.Ads) > 0
}

// FlexString accepts a JSON string, number or boolean.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		*f = FlexString(n.String())
		return nil
	}
	var v bool
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("flexstring: unsupported value %s", b)
	}
	*f = FlexString(strconv.FormatBool(v))
	return nil
}

// FlexFloat accepts a JSON number or a numeric string.
type FlexFloat float64

func (f *FlexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	s := string(b)
	if b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return fmt.Errorf("flexfloat: %w", err)
	}
	*f = FlexFloat(v)
	return nil
}
