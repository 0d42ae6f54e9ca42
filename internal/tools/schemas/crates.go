package schemas

// SearchCrates describes search_crates.
func SearchCrates() *Schema {
	return NewSchema("search_crates", "Search crates.io for crates matching a query.").
		AddParam("query", TypeString, "Search terms", true).
		AddParam("page", TypeInteger, "Result page, starting at 1", false).
		AddParam("per_page", TypeInteger, "Results per page", false).
		Build()
}

// GetCrate describes get_crate.
func GetCrate() *Schema {
	return NewSchema("get_crate", "Get crates.io details of a crate: latest version, description, links and downloads.").
		AddParam("crate_name", TypeString, "Exact crate name", true).
		Build()
}

// GetCrateVersions describes get_crate_versions.
func GetCrateVersions() *Schema {
	return NewSchema("get_crate_versions", "List the published versions of a crate, newest first.").
		AddParam("crate_name", TypeString, "Exact crate name", true).
		Build()
}

// GetCrateDependencies describes get_crate_dependencies.
func GetCrateDependencies() *Schema {
	return NewSchema("get_crate_dependencies", "List the dependencies of one version of a crate.").
		AddParam("crate_name", TypeString, "Exact crate name", true).
		AddParam("version", TypeString, "Exact version, e.g. 1.0.210", true).
		Build()
}

// LookupCrateDocs describes lookup_crate_docs.
func LookupCrateDocs() *Schema {
	return NewSchema("lookup_crate_docs", "Fetch the front page of a crate's documentation from docs.rs as Markdown.").
		AddParam("crate_name", TypeString, "Crate name", false).
		WithDefault("tokio").
		AddParam("version", TypeString, "Version to document (defaults to latest)", false).
		Build()
}
