package datafile

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func TestReadRV(t *testing.T) {
	path := writeFile(t, "rv1.txt", `# JD        RV (km/s)  error
48000.5     -23.4      0.8

48060.5      12.1      0.5
# trailing comment
48121.0      31.7      1.2
`)
	obs, err := ReadRV(path)
	if err != nil {
		t.Fatalf("ReadRV: %v", err)
	}
	if len(obs) != 3 {
		t.Fatalf("ReadRV returned %d observations, want 3", len(obs))
	}
	if obs[0].Epoch != 48000.5 || obs[0].Velocity != -23.4 || obs[0].Sigma != 0.8 {
		t.Errorf("first observation = %+v", obs[0])
	}
	if obs[2].Velocity != 31.7 {
		t.Errorf("third velocity = %v, want 31.7", obs[2].Velocity)
	}
}

func TestReadRVIgnoresExtraColumns(t *testing.T) {
	path := writeFile(t, "rv.txt", "48000.5 -23.4 0.8 instrumentA\n")
	obs, err := ReadRV(path)
	if err != nil {
		t.Fatalf("ReadRV: %v", err)
	}
	if len(obs) != 1 || obs[0].Sigma != 0.8 {
		t.Errorf("observations = %+v", obs)
	}
}

func TestReadRVErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errPart string
	}{
		{"too few columns", "48000.5 -23.4\n", "expected 3 columns"},
		{"non-numeric column", "48000.5 fast 0.8\n", "column 2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "bad.txt", tt.content)
			_, err := ReadRV(path)
			if err == nil {
				t.Fatal("ReadRV succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.errPart) {
				t.Errorf("error %q does not mention %q", err, tt.errPart)
			}
			if !strings.Contains(err.Error(), ":1:") {
				t.Errorf("error %q does not carry the line number", err)
			}
		})
	}
}

func TestReadRVMissingFile(t *testing.T) {
	if _, err := ReadRV(filepath.Join(t.TempDir(), "absent.txt")); err == nil {
		t.Error("ReadRV succeeded on a missing file")
	}
}

func TestReadASCartesian(t *testing.T) {
	path := writeFile(t, "as.txt", `# JD      east    north   major  minor  angle
48000.5   120.3   -45.1   2.0    1.0    30.0
48400.5   118.9   -60.2   2.5    1.2    45.0
`)
	obs, err := ReadAS(path, false)
	if err != nil {
		t.Fatalf("ReadAS: %v", err)
	}
	if len(obs) != 2 {
		t.Fatalf("ReadAS returned %d observations, want 2", len(obs))
	}
	o := obs[0]
	if o.Epoch != 48000.5 || o.East != 120.3 || o.North != -45.1 ||
		o.Major != 2.0 || o.Minor != 1.0 || o.Angle != 30.0 {
		t.Errorf("first observation = %+v", o)
	}
}

func TestReadASPolar(t *testing.T) {
	path := writeFile(t, "as.txt", "48000.5 100.0 90.0 2.0 1.0 30.0\n")
	obs, err := ReadAS(path, true)
	if err != nil {
		t.Fatalf("ReadAS: %v", err)
	}
	if len(obs) != 1 {
		t.Fatalf("ReadAS returned %d observations, want 1", len(obs))
	}
	// separation 100 at position angle 90 is due east
	o := obs[0]
	if math.Abs(o.East-100) > 1e-9 || math.Abs(o.North) > 1e-9 {
		t.Errorf("polar conversion = (east %v, north %v), want (100, 0)", o.East, o.North)
	}
	if o.Major != 2.0 || o.Minor != 1.0 || o.Angle != 30.0 {
		t.Errorf("ellipse columns = %+v", o)
	}
}
