package config

import (
	"path/filepath"
)

const (
	storageSubsection    = "storage"
	recordsSubsection    = "records"
	attributesSubsection = "attributes"
	enumSubsection       = "enum"
	sanitySubsection     = "sanity"

	// DefaultEnumCacheSize is the default size of attribute name caches.
	DefaultEnumCacheSize = 1024
	// DefaultSanityWorkers is the default number of sanity check goroutines.
	DefaultSanityWorkers = 4
)

// Storage is a wrapper over "storage" config section.
type Storage struct {
	cfg *Config
}

// StorageSection returns "storage" section of the config.
func StorageSection(c *Config) Storage {
	return Storage{cfg: c.Sub(storageSubsection)}
}

// Path returns the value of "path" config parameter: the storage directory.
//
// Returns "" if the value is missing.
func (s Storage) Path() string {
	return StringSafe(s.cfg, "path")
}

// componentPath returns explicitly configured path of the component or its
// default file inside the storage directory.
func (s Storage) componentPath(section, def string) string {
	if p := StringSafe(s.cfg.Sub(section), "path"); p != "" {
		return p
	}
	if dir := s.Path(); dir != "" {
		return filepath.Join(dir, def)
	}
	return ""
}

// RecordsPath returns the value of "records.path" config parameter, falling
// back to def inside the storage directory.
func (s Storage) RecordsPath(def string) string {
	return s.componentPath(recordsSubsection, def)
}

// RecordsPageSize returns the value of "records.page_size" config parameter.
//
// Returns 0 if the value is missing or invalid.
func (s Storage) RecordsPageSize() int {
	return int(SizeInBytesSafe(s.cfg.Sub(recordsSubsection), "page_size"))
}

// AttributesPath returns the value of "attributes.path" config parameter,
// falling back to def inside the storage directory.
func (s Storage) AttributesPath(def string) string {
	return s.componentPath(attributesSubsection, def)
}

// IgnoreAlreadyDeleted returns the value of
// "attributes.ignore_already_deleted" config parameter.
//
// Returns true if the value is missing.
func (s Storage) IgnoreAlreadyDeleted() bool {
	c := s.cfg.Sub(attributesSubsection)
	if c.Value("ignore_already_deleted") == nil {
		return true
	}
	return BoolSafe(c, "ignore_already_deleted")
}

// EnumPath returns the value of "enum.path" config parameter, falling back
// to def inside the storage directory.
func (s Storage) EnumPath(def string) string {
	return s.componentPath(enumSubsection, def)
}

// EnumCacheSize returns the value of "enum.cache_size" config parameter.
//
// Returns DefaultEnumCacheSize if the value is missing or not positive.
func (s Storage) EnumCacheSize() int {
	if v := IntSafe(s.cfg.Sub(enumSubsection), "cache_size"); v > 0 {
		return int(v)
	}
	return DefaultEnumCacheSize
}

// SanityWorkers returns the value of "sanity.workers" config parameter.
//
// Returns DefaultSanityWorkers if the value is missing or not positive.
func (s Storage) SanityWorkers() int {
	if v := IntSafe(s.cfg.Sub(sanitySubsection), "workers"); v > 0 {
		return int(v)
	}
	return DefaultSanityWorkers
}
