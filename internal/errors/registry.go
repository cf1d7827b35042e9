package errors

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category Category
	Message  string
	Detail   string
}

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// ============================================
	// Initialization Errors (E100-E119)
	// ============================================

	"E100": {
		Category: CategoryInit,
		Message:  "Listen failed",
		Detail:   "The listening socket could not be created or bound. The port may be in use or require elevated privileges.",
	},
	"E101": {
		Category: CategoryInit,
		Message:  "Server not initialized",
		Detail:   "The server must be bound with Listen before it can accept connections.",
	},
	"E102": {
		Category: CategoryInit,
		Message:  "Document root not found",
		Detail:   "The configured document root does not exist or is not a directory.",
	},
	"E103": {
		Category: CategoryInit,
		Message:  "Server already listening",
		Detail:   "Listen was called on a server that is already bound.",
	},

	// ============================================
	// Config Errors (E120-E139)
	// ============================================

	"E120": {
		Category: CategoryConfig,
		Message:  "Invalid configuration",
		Detail:   "The docroot.json configuration file is invalid or could not be read.",
	},
	"E121": {
		Category: CategoryConfig,
		Message:  "Config file not found",
		Detail:   "No docroot.json was found in the given directory or any parent.",
	},
	"E122": {
		Category: CategoryConfig,
		Message:  "Invalid port",
		Detail:   "The port must be between 0 and 65535.",
	},
	"E123": {
		Category: CategoryConfig,
		Message:  "Invalid worker count",
		Detail:   "The worker count must not be negative.",
	},
	"E124": {
		Category: CategoryConfig,
		Message:  "Incomplete interpreter configuration",
		Detail:   "Both the interpreter binary and the interpreter directory must be set to enable delegation.",
	},

	// ============================================
	// Delegate Errors (E140-E149)
	// ============================================

	"E140": {
		Category: CategoryDelegate,
		Message:  "Interpreter binary not found",
		Detail:   "The interpreter binary does not exist in the interpreter directory. Dynamic delegation is disabled.",
	},

	// ============================================
	// Mirror Errors (E160-E169)
	// ============================================

	"E160": {
		Category: CategoryMirror,
		Message:  "Bucket listing failed",
		Detail:   "The objects under the requested prefix could not be listed.",
	},
	"E161": {
		Category: CategoryMirror,
		Message:  "Object download failed",
		Detail:   "An object could not be fetched or written into the document root.",
	},

	// ============================================
	// CLI Errors (E180-E189)
	// ============================================

	"E180": {
		Category: CategoryCLI,
		Message:  "Missing bucket",
		Detail:   "The sync command needs a bucket name.",
	},
}

// GetAllCodes returns all registered error codes.
func GetAllCodes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	return codes
}

// GetTemplate returns the template for an error code.
func GetTemplate(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}
