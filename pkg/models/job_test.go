package models

import "testing"

func TestJobStatusTerminalAndPercent(t *testing.T) {
	tests := []struct {
		name         string
		status       JobStatus
		wantTerminal bool
		wantPercent  float64
	}{
		{name: "fresh", status: JobStatus{Total: 4, CompletedCount: 0}, wantPercent: 0},
		{name: "partial", status: JobStatus{Total: 4, CompletedCount: 3}, wantPercent: 75},
		{name: "done", status: JobStatus{Total: 3, CompletedCount: 3}, wantTerminal: true, wantPercent: 100},
		{name: "empty job", status: JobStatus{}, wantTerminal: true, wantPercent: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.status.Terminal(); got != tt.wantTerminal {
				t.Errorf("Terminal() = %v, want %v", got, tt.wantTerminal)
			}
			if got := tt.status.Percent(); got != tt.wantPercent {
				t.Errorf("Percent() = %v, want %v", got, tt.wantPercent)
			}
		})
	}
}

func TestItemResultResolved(t *testing.T) {
	cases := []struct {
		name string
		item ItemResult
		want ItemStatus
	}{
		{"explicit success", ItemResult{Status: ItemSuccess, OutputPath: "out/a.png"}, ItemSuccess},
		{"explicit failure", ItemResult{Status: ItemFailure, Error: "decode failed"}, ItemFailure},
		{"sync success", ItemResult{OutputPath: "out/a.png"}, ItemSuccess},
		{"sync failure", ItemResult{Error: "boom"}, ItemFailure},
		{"empty", ItemResult{}, ItemFailure},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.item.Resolved(); got != tc.want {
				t.Fatalf("Resolved() = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestNewUpload(t *testing.T) {
	u := NewUpload("/tmp/photos/cat.png")
	if u.Name != "cat.png" || u.Path != "/tmp/photos/cat.png" {
		t.Fatalf("NewUpload unexpected: %+v", u)
	}
	if u.ID == "" || u.ID == NewUpload("/tmp/photos/cat.png").ID {
		t.Fatalf("expected unique upload ids, got %q", u.ID)
	}
}
