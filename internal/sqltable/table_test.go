package sqltable

import (
	"errors"
	"strings"
	"testing"
)

func TestParseModuleArgs(t *testing.T) {
	tests := []struct {
		name           string
		args           []string
		wantIdentifier string
		wantColumns    []string
		wantErr        error
	}{
		{
			name:           "no module args",
			args:           []string{"ircon", "main", "10.0.0.5:9000"},
			wantIdentifier: "10.0.0.5:9000",
			wantColumns:    []string{"mode", "temperature", "power", "angle"},
		},
		{
			name:           "columns with types",
			args:           []string{"ircon", "main", "aircon", "mode TEXT", "power varchar(8)"},
			wantIdentifier: "aircon",
			wantColumns:    []string{"mode", "power"},
		},
		{
			name:           "quoted columns",
			args:           []string{"ircon", "main", "t", `"mode"`, "`power`", "[angle] TEXT", `"fan speed" TEXT`},
			wantIdentifier: "t",
			wantColumns:    []string{"mode", "power", "angle", "fan speed"},
		},
		{
			name:           "device override",
			args:           []string{"ircon", "main", "living", "device='10.0.0.7:9000'", "mode"},
			wantIdentifier: "10.0.0.7:9000",
			wantColumns:    []string{"mode"},
		},
		{
			name:           "device override unquoted",
			args:           []string{"ircon", "main", "living", " DEVICE = 10.0.0.7 "},
			wantIdentifier: "10.0.0.7",
			wantColumns:    []string{"mode", "temperature", "power", "angle"},
		},
		{
			name:    "too few args",
			args:    []string{"ircon", "main"},
			wantErr: ErrInvalidArgs,
		},
		{
			name:    "duplicate column",
			args:    []string{"ircon", "main", "t", "mode", "mode TEXT"},
			wantErr: ErrInvalidArgs,
		},
		{
			name:    "empty device",
			args:    []string{"ircon", "main", "t", "device=''"},
			wantErr: ErrInvalidArgs,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec, err := ParseModuleArgs(tt.args)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParseModuleArgs() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseModuleArgs() error = %v", err)
			}
			if spec.Identifier != tt.wantIdentifier {
				t.Errorf("Identifier = %q, want %q", spec.Identifier, tt.wantIdentifier)
			}
			if strings.Join(spec.Columns, "|") != strings.Join(tt.wantColumns, "|") {
				t.Errorf("Columns = %v, want %v", spec.Columns, tt.wantColumns)
			}
		})
	}
}

func TestTableSpecSQL(t *testing.T) {
	spec := TableSpec{Name: "10.0.0.5:9000", Columns: []string{"mode", `we"ird`}}

	if got, want := spec.DeclareSQL(), `CREATE TABLE x("mode" TEXT, "we""ird" TEXT)`; got != want {
		t.Errorf("DeclareSQL() = %s, want %s", got, want)
	}
	if got, want := spec.CreateSQL(),
		`CREATE VIRTUAL TABLE IF NOT EXISTS "10.0.0.5:9000" USING ircon("mode", "we""ird")`; got != want {
		t.Errorf("CreateSQL() = %s, want %s", got, want)
	}

	override := TableSpec{Name: "living", Identifier: "o'brien:9000"}
	want := `CREATE VIRTUAL TABLE IF NOT EXISTS "living" USING ircon(device='o''brien:9000', "mode", "temperature", "power", "angle")`
	if got := override.CreateSQL(); got != want {
		t.Errorf("CreateSQL() = %s, want %s", got, want)
	}
}

func TestCreateSQLRoundTrip(t *testing.T) {
	spec := TableSpec{Name: "living", Identifier: "10.0.0.9", Columns: []string{"mode", "power"}}

	// Module arguments as SQLite hands them to xCreate.
	args := []string{ModuleName, "main", spec.Name, "device='10.0.0.9'", `"mode"`, `"power"`}
	got, err := ParseModuleArgs(args)
	if err != nil {
		t.Fatalf("ParseModuleArgs() error = %v", err)
	}
	if got.Identifier != spec.Identifier || strings.Join(got.Columns, ",") != "mode,power" {
		t.Errorf("round trip = %+v, want %+v", got, spec)
	}
}
