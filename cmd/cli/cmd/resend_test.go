package cmd

import (
	"reflect"
	"testing"
)

func TestParseSimIDs(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []int
	}{
		{"single id", "7", []int{7}},
		{"comma separated", "1,24,300", []int{1, 24, 300}},
		{"inclusive range", "3-6", []int{3, 4, 5, 6}},
		{"mixed list and range", "1,24,30-33", []int{1, 24, 30, 31, 32, 33}},
		{"spaces around tokens", " 1 , 2 ", []int{1, 2}},
		{"bad token skipped", "1,abc,3", []int{1, 3}},
		{"bad range skipped", "1,a-b,3", []int{1, 3}},
		{"inverted range ignored", "10-5", nil},
		{"degenerate range ignored", "5-5", nil},
		{"empty tokens ignored", ",,2,", []int{2}},
		{"nothing parsable", "abc", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseSimIDs(tt.input)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("parseSimIDs(%q) = %v, expected %v", tt.input, got, tt.expected)
			}
		})
	}
}
