package broadcast

import (
	"errors"
	"reflect"
	"testing"
)

func TestParseSelector(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Selector
		wantErr bool
	}{
		{name: "empty", raw: "", want: Selector{}},
		{name: "null", raw: "null", want: Selector{}},
		{name: "empty array", raw: "[]", want: Selector{}},
		{
			name: "jids",
			raw:  `["1@s.whatsapp.net","2@s.whatsapp.net"]`,
			want: Selector{JIDs: []string{"1@s.whatsapp.net", "2@s.whatsapp.net"}},
		},
		{name: "indices", raw: `[1,3]`, want: Selector{Indices: []int{1, 3}}},
		{name: "mixed", raw: `["1@s.whatsapp.net",2]`, wantErr: true},
		{name: "mixed reversed", raw: `[2,"1@s.whatsapp.net"]`, wantErr: true},
		{name: "non-integer", raw: `[1.5]`, wantErr: true},
		{name: "object", raw: `{"jids":[]}`, wantErr: true},
		{name: "bool element", raw: `[true]`, wantErr: true},
		{name: "garbage", raw: `not json`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSelector([]byte(tt.raw))
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidSelector) {
					t.Fatalf("err = %v, want ErrInvalidSelector", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseSelector: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	groups := GroupList{
		{Name: "Family", JIDs: []string{"a@s.whatsapp.net", "b@s.whatsapp.net"}},
		{Name: "Friends", JIDs: []string{"b@s.whatsapp.net", "c@s.whatsapp.net"}},
	}
	defaults := []string{"d@s.whatsapp.net", "d@s.whatsapp.net"}

	tests := []struct {
		name    string
		sel     Selector
		want    []string
		wantErr bool
	}{
		{
			name: "empty selector uses defaults deduped",
			sel:  Selector{},
			want: []string{"d@s.whatsapp.net"},
		},
		{
			name: "explicit jids preserve order and dedupe",
			sel:  Selector{JIDs: []string{"x@s.whatsapp.net", "y@s.whatsapp.net", "x@s.whatsapp.net"}},
			want: []string{"x@s.whatsapp.net", "y@s.whatsapp.net"},
		},
		{
			name: "indices are one-based",
			sel:  Selector{Indices: []int{1}},
			want: []string{"a@s.whatsapp.net", "b@s.whatsapp.net"},
		},
		{
			name: "overlapping groups dedupe",
			sel:  Selector{Indices: []int{1, 2}},
			want: []string{"a@s.whatsapp.net", "b@s.whatsapp.net", "c@s.whatsapp.net"},
		},
		{
			name: "out of range indices skipped",
			sel:  Selector{Indices: []int{0, 2, 99}},
			want: []string{"b@s.whatsapp.net", "c@s.whatsapp.net"},
		},
		{
			name:    "both set rejected",
			sel:     Selector{JIDs: []string{"x@s.whatsapp.net"}, Indices: []int{1}},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(groups, defaults, tt.sel)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidSelector) {
					t.Fatalf("err = %v, want ErrInvalidSelector", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}
