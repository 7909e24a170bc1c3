// Package item holds the library item model, its SQLite store, theme-media
// resolution, and the deletion protocol.
package item

import "time"

// LocationKind classifies an item's backing storage.
type LocationKind string

// Known location kinds.
const (
	LocationFileSystem LocationKind = "filesystem"
	LocationVirtual    LocationKind = "virtual"
	LocationOffline    LocationKind = "offline"
	LocationRemote     LocationKind = "remote"
)

// Kind classifies the media type of an item.
type Kind string

// Known item kinds.
const (
	KindFolder     Kind = "folder"
	KindMovie      Kind = "movie"
	KindSeries     Kind = "series"
	KindEpisode    Kind = "episode"
	KindAlbum      Kind = "album"
	KindSong       Kind = "song"
	KindMusicVideo Kind = "musicvideo"
	KindTrailer    Kind = "trailer"
	KindOther      Kind = "other"
)

// Item is a single library entry. Items form a tree via ParentID; the library
// root has an empty ParentID.
type Item struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	SortName     string       `json:"sort_name"`
	Kind         Kind         `json:"kind"`
	LocationKind LocationKind `json:"location_kind"`
	Path         string       `json:"path,omitempty"`
	ParentID     string       `json:"parent_id,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// Counts summarizes item totals by kind.
type Counts struct {
	MovieCount      int `json:"movie_count"`
	SeriesCount     int `json:"series_count"`
	EpisodeCount    int `json:"episode_count"`
	AlbumCount      int `json:"album_count"`
	SongCount       int `json:"song_count"`
	MusicVideoCount int `json:"music_video_count"`
	TrailerCount    int `json:"trailer_count"`
	FolderCount     int `json:"folder_count"`
	OtherCount      int `json:"other_count"`
}

// ThemeMediaResult is the outcome of resolving theme songs or theme videos
// for an item. Recomputed per request, never stored.
type ThemeMediaResult struct {
	OwnerID          string `json:"owner_id"`
	Items            []Item `json:"items"`
	TotalRecordCount int    `json:"total_record_count"`
}

// AllThemeMediaResult bundles the two independent theme resolutions of a
// combined theme-media request.
type AllThemeMediaResult struct {
	ThemeSongs  ThemeMediaResult `json:"theme_songs"`
	ThemeVideos ThemeMediaResult `json:"theme_videos"`
}

// CriticReview is a stored review attached to an item.
type CriticReview struct {
	ID         string `json:"id"`
	ItemID     string `json:"item_id"`
	Reviewer   string `json:"reviewer"`
	Score      int    `json:"score"`
	Summary    string `json:"summary,omitempty"`
	URL        string `json:"url,omitempty"`
	ReviewedAt string `json:"reviewed_at,omitempty"`
}

// ReviewsResult holds one page of critic reviews. TotalRecordCount is the
// count before paging was applied.
type ReviewsResult struct {
	Reviews          []CriticReview `json:"reviews"`
	TotalRecordCount int            `json:"total_record_count"`
}
