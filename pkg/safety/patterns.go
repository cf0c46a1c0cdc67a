package safety

import "regexp"

// category groups one severity tier's compiled patterns.
type category struct {
	name     string
	isWarn   bool // WARN patterns dock score but never block
	patterns []*regexp.Regexp
}

var alwaysDangerous = category{name: "ALWAYS_DANGEROUS", patterns: compileAll(
	`rm\s+-rf\s+/(\s|$)`,
	`DROP\s+TABLE`,
	`DROP\s+DATABASE`,
	`git\s+push\s+--force\s+origin\s+main`,
	`\.\./\.\./etc/passwd`,
	`eval\(.*\$.*\)`,
)}

var destructive = category{name: "DESTRUCTIVE", patterns: compileAll(
	`rm\s+-rf\s+/var`,
	`dd\s+if=/dev/zero\s+of=/dev/sd`,
	`mkfs\.\w+`,
	`chmod\s+-R\s+777\s+/`,
	`:\(\)\s*\{\s*:\s*\|\s*:\s*&\s*\}\s*;\s*:`, // fork bomb
	`sudo\s+rm\s+-rf`,
)}

var feDangerous = category{name: "FE_DANGEROUS", patterns: compileAll(
	`private_key\s*=\s*["']`,
	`process\.env\.(?!NEXT_PUBLIC_)\w+`,
)}

var warn = category{name: "WARN", isWarn: true, patterns: compileAll(
	`console\.log`,
	`debugger`,
	`TODO`,
	`FIXME`,
)}

var allCategories = []category{alwaysDangerous, destructive, feDangerous, warn}

func compileAll(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(e)
	}
	return out
}

var serverPathPatterns = compileAll(
	`^app/api/.*\.tsx?$`,
	`^pages/api/.*`,
	`^server/.*`,
	`^lib/server/.*`,
	`^scripts/.*`,
	`.*\.server\.ts$`,
	`^route\.ts$`,
)

var serverContentMarkers = []string{"NextResponse", "NextRequest", "@aws-sdk", "createClient("}

var ambiguousKeywords = []string{"maybe", "perhaps", "TBD", "not sure", "to be decided"}

// isServerSide implements the spec's path-or-content server detection.
func isServerSide(path, content string) bool {
	for _, p := range serverPathPatterns {
		if p.MatchString(path) {
			return true
		}
	}
	for _, marker := range serverContentMarkers {
		if regexp.MustCompile(regexp.QuoteMeta(marker)).MatchString(content) {
			return true
		}
	}
	return false
}

var clientAllowedEnvPrefixes = compileAll(`NEXT_PUBLIC_\w+`, `import\.meta\.env\.VITE_\w+`)

var anyEnvVarRef = regexp.MustCompile(`process\.env\.\w+|import\.meta\.env\.\w+`)
