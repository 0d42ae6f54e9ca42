package crates

// Crate is the crates.io summary of one crate.
type Crate struct {
	Name             string   `json:"name"`
	Description      string   `json:"description,omitempty"`
	MaxVersion       string   `json:"max_version"`
	MaxStableVersion string   `json:"max_stable_version,omitempty"`
	Downloads        int64    `json:"downloads"`
	RecentDownloads  int64    `json:"recent_downloads,omitempty"`
	Documentation    string   `json:"documentation,omitempty"`
	Repository       string   `json:"repository,omitempty"`
	Homepage         string   `json:"homepage,omitempty"`
	Keywords         []string `json:"keywords,omitempty"`
	Categories       []string `json:"categories,omitempty"`
	CreatedAt        string   `json:"created_at,omitempty"`
	UpdatedAt        string   `json:"updated_at,omitempty"`
}

// SearchResult is one page of search hits.
type SearchResult struct {
	Crates []Crate `json:"crates"`
	Total  int     `json:"total"`
}

// Version is one published version of a crate.
type Version struct {
	Num         string `json:"num"`
	Yanked      bool   `json:"yanked"`
	License     string `json:"license,omitempty"`
	RustVersion string `json:"rust_version,omitempty"`
	Downloads   int64  `json:"downloads"`
	CreatedAt   string `json:"created_at,omitempty"`
}

// Dependency is one dependency of a crate version.
type Dependency struct {
	CrateID         string   `json:"crate_id"`
	Req             string   `json:"req"`
	Kind            string   `json:"kind"`
	Optional        bool     `json:"optional"`
	DefaultFeatures bool     `json:"default_features"`
	Features        []string `json:"features,omitempty"`
	Target          string   `json:"target,omitempty"`
}

// Docs is the rendered front page of a crate's documentation.
type Docs struct {
	Crate     string `json:"crate"`
	Version   string `json:"version"`
	URL       string `json:"url"`
	Markdown  string `json:"markdown"`
	Truncated bool   `json:"truncated,omitempty"`
}

// Wire shapes of the crates.io responses.
type (
	searchResponse struct {
		Crates []Crate `json:"crates"`
		Meta   struct {
			Total int `json:"total"`
		} `json:"meta"`
	}
	crateResponse struct {
		Crate Crate `json:"crate"`
	}
	versionsResponse struct {
		Versions []Version `json:"versions"`
	}
	dependenciesResponse struct {
		Dependencies []Dependency `json:"dependencies"`
	}
)
