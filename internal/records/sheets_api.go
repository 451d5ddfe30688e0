package records

import (
	"context"
	"fmt"

	"github.com/mitchellh/go-homedir"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const valueInputRaw = "RAW"

// GoogleValues adapts the Sheets v4 values resource to ValuesAPI.
type GoogleValues struct {
	svc *sheets.Service
}

// NewGoogleValues authenticates with a service-account credentials file.
func NewGoogleValues(ctx context.Context, credentialsFile string) (*GoogleValues, error) {
	path, err := homedir.Expand(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to expand credentials path %q: %w", credentialsFile, err)
	}
	svc, err := sheets.NewService(ctx,
		option.WithCredentialsFile(path),
		option.WithScopes(sheets.SpreadsheetsScope),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}
	return &GoogleValues{svc: svc}, nil
}

// Get reads a range and stringifies every cell.
func (g *GoogleValues) Get(ctx context.Context, spreadsheetID, rng string) ([][]string, error) {
	resp, err := g.svc.Spreadsheets.Values.Get(spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	out := make([][]string, len(resp.Values))
	for i, row := range resp.Values {
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = fmt.Sprint(v)
		}
		out[i] = cells
	}
	return out, nil
}

// Update overwrites a single cell with a raw value.
func (g *GoogleValues) Update(ctx context.Context, spreadsheetID, rng, value string) error {
	vr := &sheets.ValueRange{Values: [][]interface{}{{value}}}
	_, err := g.svc.Spreadsheets.Values.Update(spreadsheetID, rng, vr).
		ValueInputOption(valueInputRaw).
		Context(ctx).
		Do()
	return err
}
