package payload

import (
	"errors"
	"testing"
)

func TestInterpret(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Record
		wantErr bool
	}{
		{
			name: "name and email",
			raw:  `{"name":"Jane Doe","contact":"jane@x.com"}`,
			want: Record{"name": "Jane Doe", "contact": "jane@x.com"},
		},
		{
			name: "all well-known keys",
			raw:  `{"name":"Ali","contact":"03001234567","dept":"EE","imageUrl":"https://example.com/a.png"}`,
			want: Record{"name": "Ali", "contact": "03001234567", "dept": "EE", "imageUrl": "https://example.com/a.png"},
		},
		{
			name: "unknown keys are kept",
			raw:  `{"plate":"LHR-1234","name":"Sam"}`,
			want: Record{"plate": "LHR-1234", "name": "Sam"},
		},
		{
			name: "empty object",
			raw:  `{}`,
			want: Record{},
		},
		{
			name: "non-string scalars keep literal text",
			raw:  `{"seats":4,"active":true,"ratio":1.50}`,
			want: Record{"seats": "4", "active": "true", "ratio": "1.50"},
		},
		{
			name: "nested values compacted and nulls dropped",
			raw:  `{"tags": [ "a", "b" ], "meta": { "k" : 1 }, "gone": null}`,
			want: Record{"tags": `["a","b"]`, "meta": `{"k":1}`},
		},
		{
			name:    "trailing bracket",
			raw:     `{"name":"Jane"}]`,
			wantErr: true,
		},
		{
			name:    "trailing brace",
			raw:     `{"name":"Jane"}}`,
			wantErr: true,
		},
		{
			name: "surrounding whitespace",
			raw:  "  {\"name\":\"Jo\"}\n",
			want: Record{"name": "Jo"},
		},
		{name: "malformed", raw: `{"name":`, wantErr: true},
		{name: "plain text", raw: `https://example.com`, wantErr: true},
		{name: "top level array", raw: `["a"]`, wantErr: true},
		{name: "top level number", raw: `42`, wantErr: true},
		{name: "top level null", raw: `null`, wantErr: true},
		{name: "empty", raw: ``, wantErr: true},
		{name: "trailing data", raw: `{"a":"b"} {"c":"d"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Interpret(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrParse) {
					t.Fatalf("Interpret(%q) error = %v, want ErrParse", tt.raw, err)
				}
				if got != nil {
					t.Errorf("Interpret(%q) record = %v, want nil", tt.raw, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Interpret(%q) unexpected error: %v", tt.raw, err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Interpret(%q) = %v, want %v", tt.raw, got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("key %q = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}

func TestContactHref(t *testing.T) {
	tests := []struct {
		contact string
		want    string
		email   bool
	}{
		{"jane@x.com", "mailto:jane@x.com", true},
		{"03001234567", "tel:03001234567", false},
		{"+92 300 1234567", "tel:+92 300 1234567", false},
		{"", "", false},
	}
	for _, tt := range tests {
		r := Record{}
		if tt.contact != "" {
			r[KeyContact] = tt.contact
		}
		if got := r.ContactHref(); got != tt.want {
			t.Errorf("ContactHref(%q) = %q, want %q", tt.contact, got, tt.want)
		}
		if got := r.IsEmail(); got != tt.email {
			t.Errorf("IsEmail(%q) = %v, want %v", tt.contact, got, tt.email)
		}
	}
}

func TestAccessorsOnNilRecord(t *testing.T) {
	var r Record
	if r.Name() != "" || r.Contact() != "" || r.Dept() != "" || r.ImageURL() != "" {
		t.Error("accessors on nil record should return empty strings")
	}
	if r.Clone() != nil {
		t.Error("Clone of nil record should be nil")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	r := Record{"name": "A"}
	c := r.Clone()
	c["name"] = "B"
	if r.Name() != "A" {
		t.Errorf("original mutated through clone: %q", r.Name())
	}
}
