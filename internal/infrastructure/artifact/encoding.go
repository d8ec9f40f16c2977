package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/erp/salesforecast/internal/domain/forecast"
)

// EncodingDocument is the wire form of forecast.Encoding
type EncodingDocument struct {
	FormatVersion int                `json:"format_version"`
	Schema        string             `json:"schema"`
	CreatedAt     time.Time          `json:"created_at"`
	RunID         string             `json:"run_id"`
	Products      map[string]int     `json:"products"`
	Countries     map[string]int     `json:"countries"`
	AveragePrices map[string]float64 `json:"average_prices"`
}

// EncodeEncoding renders an encoding as an indented JSON document
func EncodeEncoding(enc *forecast.Encoding) ([]byte, error) {
	if enc == nil || enc.Products == nil {
		return nil, errors.New("artifact: encoding is required")
	}
	doc := EncodingDocument{
		FormatVersion: FormatVersion,
		Schema:        string(enc.Schema),
		CreatedAt:     enc.CreatedAt.UTC(),
		RunID:         enc.RunID,
		Products:      enc.Products.Codes(),
		Countries:     map[string]int{},
		AveragePrices: map[string]float64{},
	}
	if enc.Countries != nil {
		doc.Countries = enc.Countries.Codes()
	}
	for k, v := range enc.AveragePrices {
		doc.AveragePrices[k] = v
	}
	return json.MarshalIndent(doc, "", "  ")
}

// DecodeEncoding parses an encoding document, restores its category maps and
// checks the declared schema equals schema.
func DecodeEncoding(data []byte, schema forecast.Schema) (*forecast.Encoding, error) {
	var doc EncodingDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: encoding: %v", ErrCorrupt, err)
	}
	if doc.FormatVersion != FormatVersion {
		return nil, fmt.Errorf("%w: encoding format version %d, want %d", ErrCorrupt, doc.FormatVersion, FormatVersion)
	}

	declared, err := forecast.ParseSchema(doc.Schema)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding: %v", ErrCorrupt, err)
	}
	if declared != schema {
		return nil, forecast.SchemaMismatch(fmt.Sprintf("encoding was built for %s, deployment serves %s", declared, schema))
	}

	products, err := forecast.CategoryMapFromCodes(forecast.EntityProduct, doc.Products)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	countries, err := forecast.CategoryMapFromCodes(forecast.EntityCountry, doc.Countries)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	enc := &forecast.Encoding{
		Schema:        declared,
		RunID:         doc.RunID,
		CreatedAt:     doc.CreatedAt,
		Products:      products,
		Countries:     countries,
		AveragePrices: doc.AveragePrices,
	}
	if enc.AveragePrices == nil {
		enc.AveragePrices = map[string]float64{}
	}
	if err := enc.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return enc, nil
}
