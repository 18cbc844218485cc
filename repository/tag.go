package repository

import (
	"time"

	"github.com/tracklore/tracklore/id"
)

// CompleteTag is the track metadata a peer advertises: title, artist, and
// album, plus the stable hash of those fields (or of the file's canonical
// bytes) that serves as the resource's primary key in the DHT namespace.
type CompleteTag struct {
	Title   string `json:"title"`
	Artist  string `json:"artist"`
	Album   string `json:"album"`
	TagHash id.ID  `json:"tag_hash"`
}

// URLEntry is one peer endpoint known to serve a resource, along with the
// time it last (re)advertised that fact.
type URLEntry struct {
	Endpoint        string    `json:"endpoint"`
	PublicationTime time.Time `json:"publication_time"`
}

// ResourceRecord is the stored value the DHT namespace maps resource IDs
// to: a track's metadata plus every peer endpoint known to serve it.
type ResourceRecord struct {
	ID   id.ID               `json:"id"`
	Tag  CompleteTag         `json:"tag"`
	URLs map[string]URLEntry `json:"urls"` // keyed by Endpoint
}

// ContainsURL reports whether endpoint is already recorded for this resource.
func (r *ResourceRecord) ContainsURL(endpoint string) bool {
	_, ok := r.URLs[endpoint]
	return ok
}

// PublicationTime returns the recorded publication time for endpoint.
func (r *ResourceRecord) PublicationTime(endpoint string) (time.Time, bool) {
	entry, ok := r.URLs[endpoint]
	return entry.PublicationTime, ok
}
