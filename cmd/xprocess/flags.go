package main

import "time"

// GlobalFlags holds the persistent flags shared by every command.
type GlobalFlags struct {
	Root       string
	ConfigPath string
}

// ShowFlags Flag structs to decouple cobra from logic for testing.
type ShowFlags struct {
	Format string // text|yaml|json
}

type KillFlags struct {
	Tree    bool
	Timeout time.Duration
}

type EnsureFlags struct {
	Name    string // only this entry of the config, when set
	Restart bool
}

// ServeFlags override the [server] section of the config file.
type ServeFlags struct {
	Addr       string
	BasePath   string
	Metrics    bool
	TLSCert    string
	TLSKey     string
	TLSDir     string
	TLSAutoGen bool
}
