package main

// CLIResult is the top-level JSON envelope for all query commands.
type CLIResult struct {
	Command    string `json:"command"`
	Results    any    `json:"results"`
	TotalCount *int   `json:"total_count,omitempty"`
	Error      string `json:"error,omitempty"`
}

// CLILocation is a definition target. Lines and columns are 0-based.
type CLILocation struct {
	File      string `json:"file"`
	StartLine int    `json:"start_line"`
	StartCol  int    `json:"start_col"`
	EndLine   int    `json:"end_line"`
	EndCol    int    `json:"end_col"`
}

// CLIHover is the rendered documentation of a token.
type CLIHover struct {
	Contents  string `json:"contents"`
	StartLine int    `json:"start_line"`
	StartCol  int    `json:"start_col"`
	EndLine   int    `json:"end_line"`
	EndCol    int    `json:"end_col"`
}

// CLISymbol is a JSON-friendly declaration from the index.
type CLISymbol struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	File      string `json:"file,omitempty"`
	StartLine int    `json:"start_line"`
	StartCol  int    `json:"start_col"`
	EndLine   int    `json:"end_line"`
	EndCol    int    `json:"end_col"`
}

// CLILayer is a configured layer.
type CLILayer struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Priority int    `json:"priority"`
}

// CLIRecipe is a recipe with its providing layer and attached appends.
type CLIRecipe struct {
	Name    string   `json:"name"`
	Version string   `json:"version,omitempty"`
	Layer   string   `json:"layer,omitempty"`
	File    string   `json:"file,omitempty"`
	Appends []string `json:"appends,omitempty"`
}
