package policies

import (
	"context"
	"io"
)

type Coordinates struct {
	Lat float64
	Lon float64
}

// Geocoder resolves a postal address.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (Coordinates, error)
}

type DecodedVIN struct {
	Make         string
	Model        string
	Year         int
	BodyType     string
	Transmission string
}

// VINDecoder resolves a vehicle identification number.
type VINDecoder interface {
	Decode(ctx context.Context, vin string) (DecodedVIN, error)
}

// Sequence hands out strictly increasing numbers from one atomic increment.
type Sequence interface {
	Next(ctx context.Context, name string) (int64, error)
}

// Uploader stores binary content and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, key string, reader io.Reader, contentType string) (publicURL string, err error)
}
