package api

import (
	"github.com/gosub/vpadmin/internal/category"
	"github.com/gosub/vpadmin/internal/content"
	"github.com/gosub/vpadmin/internal/nav"
	"github.com/gosub/vpadmin/internal/posts"
	"github.com/gosub/vpadmin/internal/repo"
	"github.com/gosub/vpadmin/internal/usage"
)

// ---- response types --------------------------------------------------------

type LoginResponse struct {
	OK    bool   `json:"ok"`
	Token string `json:"token"`
	TTL   int64  `json:"ttl"` // milliseconds
}

type StatusResponse struct {
	OK               bool         `json:"ok"`
	Root             string       `json:"root"`
	BlogDir          string       `json:"blogDir"`
	PreviewPort      int          `json:"previewPort"`
	PasswordFallback bool         `json:"passwordFallback"`
	Watch            bool         `json:"watch"`
	AutoCommit       bool         `json:"autocommit"`
	Git              *repo.Status `json:"git,omitempty"`
}

type ListResponse struct {
	OK    bool         `json:"ok"`
	Items []posts.Item `json:"items"`
}

type PreviewResponse struct {
	OK bool `json:"ok"`
	posts.Preview
}

type PostResponse struct {
	OK bool `json:"ok"`
	posts.Result
}

type TrashResponse struct {
	OK    bool                 `json:"ok"`
	Items []content.TrashEntry `json:"items"`
}

type RestoreResponse struct {
	OK   bool   `json:"ok"`
	Name string `json:"name"`
	posts.Result
}

type CategoriesResponse struct {
	OK bool `json:"ok"`
	category.Listing
}

type CategoryResponse struct {
	OK bool `json:"ok"`
	category.Result
}

type UsageResponse struct {
	OK bool `json:"ok"`
	usage.Usage
}

type NavResponse struct {
	OK bool `json:"ok"`
	nav.Artifact
}

type CommandResponse struct {
	OK  bool   `json:"ok"`
	Out string `json:"out,omitempty"`
	URL string `json:"url,omitempty"`
}

// ---- request types ---------------------------------------------------------

type LoginRequest struct {
	Password string `json:"password"`
}

// RefRequest names a post by relative path or slug.
type RefRequest struct {
	Rel string `json:"rel"`
}

type PromoteRequest struct {
	Rel     string `json:"rel"`
	SetDate bool   `json:"setDate"`
}

type RemoveRequest struct {
	Rel  string `json:"rel"`
	Hard bool   `json:"hard"`
}

type UpdateMetaRequest struct {
	Rel   string          `json:"rel"`
	Patch posts.MetaPatch `json:"patch"`
}

type TrashRequest struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type ToggleRequest struct {
	Dir   string `json:"dir"`
	Field string `json:"field"`
	Value *bool  `json:"value"`
}

type DeleteCategoryRequest struct {
	Dir  string `json:"dir"`
	Hard bool   `json:"hard"`
}

// ---- generic ---------------------------------------------------------------

type OKResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

type ErrorResponse struct {
	OK        bool   `json:"ok"`
	Error     string `json:"error"`
	Checklist any    `json:"checklist,omitempty"`
	Out       string `json:"out,omitempty"`
	Err       string `json:"err,omitempty"`
}
