package main

import (
	"encoding/json"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/loykin/xprocess/internal/controller"
)

// listingRow is the structured form of one show line.
type listingRow struct {
	Name    string `json:"name" yaml:"name"`
	PID     int    `json:"pid" yaml:"pid"`
	Running bool   `json:"running" yaml:"running"`
	LogPath string `json:"log_path" yaml:"log_path"`
}

func listingRows(listings []controller.Listing) []listingRow {
	rows := make([]listingRow, 0, len(listings))
	for _, l := range listings {
		rows = append(rows, listingRow{
			Name:    l.Info.Name,
			PID:     l.Info.PID,
			Running: l.Running,
			LogPath: l.Info.LogPath,
		})
	}
	return rows
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = w.Write(append(b, '\n'))
	return err
}

func printYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
