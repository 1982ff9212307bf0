package persist

import (
	"errors"
	"testing"
)

type Settings struct {
	Name  string
	Scale float64
}

func (s *Settings) Persist(ar *Archive) {
	ar.Enter("settings", 2)
	ar.Value("name", &s.Name)
	if ar.Version() >= 2 {
		ar.Value("scale", &s.Scale)
	}
}

type App struct {
	Settings Settings
	Theme    string
	seen     []int
	formats  []string
}

func (a *App) Persist(ar *Archive) {
	ar.Value("settings", &a.Settings)
	a.seen = append(a.seen, ar.Version())
	a.formats = append(a.formats, ar.Format())
	if ar.Version() >= 5 {
		ar.Value("theme", &a.Theme)
	}
}

func TestVersion_RoundTrip(t *testing.T) {
	opt := Options{Format: "app", Version: 5}
	for _, enc := range allEncodings {
		in := &App{Settings: Settings{Name: "s", Scale: 1.5}, Theme: "dark"}
		var out App
		roundTrip(t, enc, nil, opt, "app", in, &out)
		deepEqual(t, out.Settings, in.Settings)
		deepEqual(t, out.Theme, "dark")
		// the nested Enter must not leak into the parent, in any pass
		deepEqual(t, in.seen, []int{5})
		deepEqual(t, out.seen, []int{5, 5})
		deepEqual(t, in.formats, []string{"app"})
		deepEqual(t, out.formats, []string{"app", "app"})
	}
}

func TestVersion_OlderArchive(t *testing.T) {
	const data = `<?xml version="1.0"?>
<app address="1" format="app" version="4" theme="light">
	<settings address="2" format="settings" version="1" name="old" scale="9"/>
</app>
`
	out := App{Theme: "default"}
	err := NewReader(XML, nil, Options{Format: "app", Version: 5}).Unmarshal([]byte(data), "app", &out)
	if err != nil {
		t.Fatal(err)
	}
	deepEqual(t, out.Settings, Settings{Name: "old"})
	deepEqual(t, out.Theme, "default")
	deepEqual(t, out.seen, []int{4, 4})
}

func TestVersion_NewerArchive(t *testing.T) {
	const data = `<?xml version="1.0"?>
<app address="1" format="app" version="5">
	<settings address="2" format="settings" version="3" name="new"/>
</app>
`
	var out App
	err := NewReader(XML, nil, Options{Format: "app", Version: 5}).Unmarshal([]byte(data), "app", &out)
	var ive *InvalidVersionError
	if !errors.As(err, &ive) {
		t.Fatalf("err = %T %v, wanted *InvalidVersionError", err, err)
	}
	deepEqual(t, *ive, InvalidVersionError{Version: 3, Supported: 2})
}

func TestVersion_NewerRoot(t *testing.T) {
	data, err := NewWriter(Binary, nil, Options{Format: "app", Version: 6}).Marshal("app", &App{})
	if err != nil {
		t.Fatal(err)
	}
	var out App
	err = NewReader(Binary, nil, Options{Format: "app", Version: 5}).Unmarshal(data, "app", &out)
	var ive *InvalidVersionError
	if !errors.As(err, &ive) || ive.Version != 6 || ive.Supported != 5 {
		t.Fatalf("err = %T %v, wanted *InvalidVersionError 6 > 5", err, err)
	}
}

func TestFormatMismatch(t *testing.T) {
	for _, enc := range allEncodings {
		data, err := NewWriter(enc, nil, Options{Format: "other", Version: 1}).Marshal("app", &App{})
		if err != nil {
			t.Fatal(err)
		}
		var out App
		err = NewReader(enc, nil, Options{Format: "app", Version: 1}).Unmarshal(data, "app", &out)
		var ife *InvalidFormatError
		if !errors.As(err, &ife) {
			t.Fatalf("%v: err = %T %v, wanted *InvalidFormatError", enc, err, err)
		}
		deepEqual(t, *ife, InvalidFormatError{Format: "other", Expected: "app"})
	}
}

func TestVersion_Unversioned(t *testing.T) {
	// an archive without format or version is accepted by any reader
	const data = `{"app": {"address": 1, "theme": "x", "settings": {"address": 2, "name": "n"}}}`
	var out App
	err := NewReader(JSON, nil, Options{Format: "app", Version: 5}).Unmarshal([]byte(data), "app", &out)
	if err != nil {
		t.Fatal(err)
	}
	deepEqual(t, out.Theme, "x")
	deepEqual(t, out.Settings.Name, "n")
}
