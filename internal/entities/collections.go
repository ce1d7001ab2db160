package entities

import (
	"time"
)

// Collection names as they appear on sync actions and as local table names.
const (
	CollectionPages                    = "pages"
	CollectionVisits                   = "visits"
	CollectionBookmarks                = "bookmarks"
	CollectionAnnotations              = "annotations"
	CollectionAnnotationPrivacyLevels  = "annotationPrivacyLevels"
	CollectionSharedAnnotationMetadata = "sharedAnnotationMetadata"
	CollectionCustomLists              = "customLists"
	CollectionPageListEntries          = "pageListEntries"
	CollectionSharedListMetadata       = "sharedListMetadata"
	CollectionTags                     = "tags"
	CollectionSettings                 = "settings"
	CollectionTemplates                = "templates"
	CollectionFavIcons                 = "favIcons"
)

type AnnotationPrivacyLevel int

const (
	AnnotationPrivacyPrivate   AnnotationPrivacyLevel = 100
	AnnotationPrivacyShared    AnnotationPrivacyLevel = 200
	AnnotationPrivacyProtected AnnotationPrivacyLevel = 300
)

// Page is a visited or saved web page, keyed by its normalized URL.
type Page struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	URL         string    `gorm:"uniqueIndex;size:2048" json:"url"`
	FullURL     string    `gorm:"size:4096" json:"full_url"`
	Domain      string    `gorm:"index;size:255" json:"domain"`
	Hostname    string    `gorm:"size:255" json:"hostname"`
	FullTitle   string    `gorm:"size:1024" json:"full_title"`
	Text        string    `gorm:"type:text" json:"text,omitempty"`
	ContentType string    `gorm:"size:50" json:"content_type,omitempty"` // "html" or "pdf"
	CreatedAt   time.Time `json:"created_at"`
}

func (Page) TableName() string {
	return CollectionPages
}

type Visit struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	URL        string    `gorm:"index;size:2048" json:"url"`
	Time       time.Time `gorm:"index" json:"time"`
	Duration   int64     `json:"duration,omitempty"` // milliseconds
	ScrollPerc float64   `json:"scroll_perc,omitempty"`
}

func (Visit) TableName() string {
	return CollectionVisits
}

type Bookmark struct {
	ID   uint      `gorm:"primaryKey" json:"id"`
	URL  string    `gorm:"uniqueIndex;size:2048" json:"url"`
	Time time.Time `json:"time"`
}

func (Bookmark) TableName() string {
	return CollectionBookmarks
}

// Annotation is a highlight and/or note attached to a page.
type Annotation struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	URL          string    `gorm:"uniqueIndex;size:2048" json:"url"` // page URL + "/#" + creation timestamp
	PageURL      string    `gorm:"index;size:2048" json:"page_url"`
	PageTitle    string    `gorm:"size:1024" json:"page_title"`
	Body         string    `gorm:"type:text" json:"body,omitempty"`
	Comment      string    `gorm:"type:text" json:"comment,omitempty"`
	Selector     string    `gorm:"type:text" json:"selector,omitempty"` // serialized anchor
	CreatedWhen  time.Time `json:"created_when"`
	LastEdited   time.Time `json:"last_edited"`
	IsSocialPost bool      `json:"is_social_post,omitempty"`
}

func (Annotation) TableName() string {
	return CollectionAnnotations
}

type AnnotationPrivacy struct {
	ID            uint                   `gorm:"primaryKey" json:"id"`
	AnnotationURL string                 `gorm:"uniqueIndex;size:2048" json:"annotation"`
	PrivacyLevel  AnnotationPrivacyLevel `json:"privacy_level"`
	CreatedWhen   time.Time              `json:"created_when"`
	UpdatedWhen   *time.Time             `json:"updated_when,omitempty"`
}

func (AnnotationPrivacy) TableName() string {
	return CollectionAnnotationPrivacyLevels
}

type SharedAnnotationMetadata struct {
	ID               uint   `gorm:"primaryKey" json:"id"`
	LocalID          string `gorm:"uniqueIndex;size:2048" json:"local_id"` // annotation URL
	RemoteID         string `gorm:"size:255" json:"remote_id"`
	ExcludeFromLists bool   `json:"exclude_from_lists"`
}

func (SharedAnnotationMetadata) TableName() string {
	return CollectionSharedAnnotationMetadata
}

type CustomList struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Name           string    `gorm:"index;size:512" json:"name"`
	SearchableName string    `gorm:"size:512" json:"searchable_name"`
	IsDeletable    bool      `json:"is_deletable"`
	IsNestable     bool      `json:"is_nestable"`
	CreatedAt      time.Time `json:"created_at"`
}

func (CustomList) TableName() string {
	return CollectionCustomLists
}

type PageListEntry struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ListID    uint      `gorm:"uniqueIndex:idx_list_page" json:"list_id"`
	PageURL   string    `gorm:"uniqueIndex:idx_list_page;size:2048" json:"page_url"`
	FullURL   string    `gorm:"size:4096" json:"full_url"`
	CreatedAt time.Time `json:"created_at"`
}

func (PageListEntry) TableName() string {
	return CollectionPageListEntries
}

type SharedListMetadata struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	LocalID  uint   `gorm:"uniqueIndex" json:"local_id"` // custom list ID
	RemoteID string `gorm:"size:255" json:"remote_id"`
}

func (SharedListMetadata) TableName() string {
	return CollectionSharedListMetadata
}

// Tag attaches a free-form name to either a page or an annotation URL.
type Tag struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"uniqueIndex:idx_tag_url;size:255" json:"name"`
	URL  string `gorm:"uniqueIndex:idx_tag_url;size:2048" json:"url"`
}

func (Tag) TableName() string {
	return CollectionTags
}

// Template is a copy-paster template used to render pages and notes.
type Template struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Title       string `gorm:"size:512" json:"title"`
	Code        string `gorm:"type:text" json:"code"`
	IsFavourite bool   `json:"is_favourite"`
}

func (Template) TableName() string {
	return CollectionTemplates
}

type FavIcon struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Hostname string `gorm:"uniqueIndex;size:255" json:"hostname"`
	FavIcon  []byte `json:"fav_icon"`
}

func (FavIcon) TableName() string {
	return CollectionFavIcons
}
