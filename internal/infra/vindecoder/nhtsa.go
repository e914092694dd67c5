package vindecoder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"carshare/internal/app/policies"
)

var ErrUndecodable = errors.New("vindecoder: vin could not be decoded")

// NHTSA queries the vPIC DecodeVinValues endpoint.
type NHTSA struct {
	Client  *http.Client
	BaseURL string
}

func NewNHTSA(baseURL string) *NHTSA {
	return &NHTSA{Client: &http.Client{Timeout: 5 * time.Second}, BaseURL: strings.TrimRight(baseURL, "/")}
}

type vpicResponse struct {
	Results []struct {
		Make              string `json:"Make"`
		Model             string `json:"Model"`
		ModelYear         string `json:"ModelYear"`
		BodyClass         string `json:"BodyClass"`
		TransmissionStyle string `json:"TransmissionStyle"`
		ErrorCode         string `json:"ErrorCode"`
	} `json:"Results"`
}

func (n *NHTSA) Decode(ctx context.Context, vin string) (policies.DecodedVIN, error) {
	var zero policies.DecodedVIN
	vin = strings.ToUpper(strings.TrimSpace(vin))
	if len(vin) != 17 {
		return zero, ErrUndecodable
	}
	endpoint := fmt.Sprintf("%s/vehicles/DecodeVinValues/%s?format=json", n.BaseURL, url.PathEscape(vin))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return zero, err
	}
	client := n.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return zero, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return zero, fmt.Errorf("vindecoder: status %d", resp.StatusCode)
	}
	var body vpicResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return zero, fmt.Errorf("vindecoder: decode response: %w", err)
	}
	if len(body.Results) == 0 {
		return zero, ErrUndecodable
	}
	r := body.Results[0]
	if strings.TrimSpace(r.Make) == "" {
		return zero, ErrUndecodable
	}
	out := policies.DecodedVIN{
		Make:         titleCase(r.Make),
		Model:        strings.TrimSpace(r.Model),
		BodyType:     strings.TrimSpace(r.BodyClass),
		Transmission: strings.ToLower(strings.TrimSpace(r.TransmissionStyle)),
	}
	if year, err := strconv.Atoi(strings.TrimSpace(r.ModelYear)); err == nil {
		out.Year = year
	}
	return out, nil
}

// titleCase turns vPIC's "MERCEDES-BENZ" into "Mercedes-Benz".
func titleCase(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	b := []byte(s)
	upper := true
	for i, c := range b {
		if upper && c >= 'a' && c <= 'z' {
			b[i] = c - 'a' + 'A'
		}
		upper = c == ' ' || c == '-'
	}
	return string(b)
}

var _ policies.VINDecoder = (*NHTSA)(nil)
