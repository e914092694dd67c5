package booking

import (
	"strings"
	"time"
)

// InspectionPhotos are the four required walk-around photo URLs.
type InspectionPhotos struct {
	Front string
	Back  string
	Left  string
	Right string
}

func (p InspectionPhotos) Complete() bool {
	for _, url := range []string{p.Front, p.Back, p.Left, p.Right} {
		if strings.TrimSpace(url) == "" {
			return false
		}
	}
	return true
}

type Inspection struct {
	Photos      InspectionPhotos
	Notes       string
	CompletedAt time.Time
}

func NewInspection(photos InspectionPhotos, notes string, now time.Time) (Inspection, error) {
	insp := Inspection{Photos: photos, Notes: strings.TrimSpace(notes), CompletedAt: now.UTC()}
	if err := insp.Validate(); err != nil {
		return Inspection{}, err
	}
	return insp, nil
}

func (i Inspection) Validate() error {
	if !i.Photos.Complete() {
		return ErrPhotosRequired
	}
	return nil
}

func (i Inspection) clone() Inspection {
	if i.CompletedAt.IsZero() {
		i.CompletedAt = time.Now().UTC()
	}
	return i
}
