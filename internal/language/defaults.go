package language

var defaults = []Language{
	{Name: "go", Extensions: []string{".go"}, RootFiles: []string{"go.mod", "go.work"}},
	{Name: "go.mod", FileNames: []string{"go.mod", "go.work"}},
	{Name: "rust", Extensions: []string{".rs"}, RootFiles: []string{"Cargo.toml"}},
	{Name: "python", Extensions: []string{".py", ".pyi"}, RootFiles: []string{"pyproject.toml", "setup.py", "requirements.txt"}},
	{Name: "typescript", Extensions: []string{".ts", ".mts", ".cts"}, RootFiles: []string{"tsconfig.json", "package.json"}},
	{Name: "typescriptreact", Extensions: []string{".tsx"}},
	{Name: "javascript", Extensions: []string{".js", ".mjs", ".cjs"}, RootFiles: []string{"package.json", "jsconfig.json"}},
	{Name: "javascriptreact", Extensions: []string{".jsx"}},
	{Name: "java", Extensions: []string{".java"}, RootFiles: []string{"pom.xml", "build.gradle", "build.gradle.kts"}},
	{Name: "kotlin", Extensions: []string{".kt", ".kts"}},
	{Name: "c", Extensions: []string{".c", ".h"}, RootFiles: []string{"compile_commands.json", "CMakeLists.txt"}},
	{Name: "cpp", Extensions: []string{".cc", ".cpp", ".cxx", ".hpp", ".hh", ".hxx"}},
	{Name: "csharp", Extensions: []string{".cs"}},
	{Name: "ruby", Extensions: []string{".rb"}, FileNames: []string{"Gemfile", "Rakefile"}, RootFiles: []string{"Gemfile"}},
	{Name: "php", Extensions: []string{".php"}, RootFiles: []string{"composer.json"}},
	{Name: "swift", Extensions: []string{".swift"}, RootFiles: []string{"Package.swift"}},
	{Name: "elixir", Extensions: []string{".ex", ".exs"}, RootFiles: []string{"mix.exs"}},
	{Name: "erlang", Extensions: []string{".erl", ".hrl"}},
	{Name: "haskell", Extensions: []string{".hs"}, RootFiles: []string{"stack.yaml"}},
	{Name: "ocaml", Extensions: []string{".ml", ".mli"}, RootFiles: []string{"dune-project"}},
	{Name: "zig", Extensions: []string{".zig"}, RootFiles: []string{"build.zig"}},
	{Name: "lua", Extensions: []string{".lua"}},
	{Name: "scala", Extensions: []string{".scala", ".sc"}, RootFiles: []string{"build.sbt"}},
	{Name: "dart", Extensions: []string{".dart"}, RootFiles: []string{"pubspec.yaml"}},
	{Name: "shellscript", Extensions: []string{".sh", ".bash", ".zsh"}},
	{Name: "html", Extensions: []string{".html", ".htm"}},
	{Name: "css", Extensions: []string{".css"}},
	{Name: "scss", Extensions: []string{".scss"}},
	{Name: "json", Extensions: []string{".json"}},
	{Name: "jsonc", Extensions: []string{".jsonc"}},
	{Name: "yaml", Extensions: []string{".yaml", ".yml"}},
	{Name: "toml", Extensions: []string{".toml"}},
	{Name: "markdown", Extensions: []string{".md", ".markdown"}},
	{Name: "sql", Extensions: []string{".sql"}},
	{Name: "proto", Extensions: []string{".proto"}},
	{Name: "graphql", Extensions: []string{".graphql", ".gql"}},
	{Name: "nix", Extensions: []string{".nix"}, RootFiles: []string{"flake.nix"}},
	{Name: "terraform", Extensions: []string{".tf", ".tfvars"}},
	{Name: "dockerfile", FileNames: []string{"Dockerfile", "Containerfile"}},
	{Name: "makefile", FileNames: []string{"Makefile", "GNUmakefile"}, Extensions: []string{".mk"}},
}
