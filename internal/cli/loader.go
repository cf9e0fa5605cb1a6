package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"cuelang.org/go/cue/token"

	"github.com/roach88/livestore/internal/compiler"
	"github.com/roach88/livestore/internal/ir"
)

// Error code constants shared by every command.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load or compile failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeDatabase    = "E006" // Trace database unreadable
	ErrCodeScenario    = "E007" // Scenario failed to load or run
	ErrCodeRequest     = "E008" // Remote request failed
	ErrCodeInvalidFlag = "E009" // Flag value rejected
)

// LoadError reports why a catalog could not be loaded.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadCatalog compiles the catalog at path, a .cue file or a directory.
//
// Path problems and CUE errors come back as *LoadError. A catalog that
// compiles but fails validation returns compiler.ValidationErrors.
func LoadCatalog(path string) (*ir.Catalog, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("catalog not found: %s", path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing catalog: %v", err)}
	}
	if info.IsDir() {
		files, err := FindCUEFiles(path)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}
		}
		if len(files) == 0 {
			return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", path)}
		}
	}

	cat, err := compiler.Load(path)
	if err == nil {
		return cat, nil
	}
	var verrs compiler.ValidationErrors
	if errors.As(err, &verrs) {
		return nil, verrs
	}
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return nil, &LoadError{
			Code:    ErrCodeLoadFailed,
			Message: fmt.Sprintf("%s: %s", compileErr.Field, compileErr.Message),
			Pos:     compileErr.Pos,
		}
	}
	return nil, &LoadError{Code: ErrCodeLoadFailed, Message: err.Error()}
}

// FindCUEFiles returns the .cue files directly inside dir, the files a CUE
// package load considers.
func FindCUEFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.Type()&fs.ModeType == 0 && filepath.Ext(e.Name()) == ".cue" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	return files, nil
}

// commandError converts a LoadCatalog error into an ExitError after writing
// it through f.
func commandError(f *OutputFormatter, err error) error {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		_ = f.Error(loadErr.Code, loadErr.Message, positionDetails(loadErr.Pos))
		return WrapExitError(ExitCommandError, loadErr.Code, err)
	}
	var verrs compiler.ValidationErrors
	if errors.As(err, &verrs) {
		_ = f.Error(verrs[0].Code, verrs[0].Message, verrs)
		return WrapExitError(ExitCommandError, "invalid catalog", err)
	}
	_ = f.Error(ErrCodeGeneric, err.Error(), nil)
	return WrapExitError(ExitCommandError, ErrCodeGeneric, err)
}

func positionDetails(pos token.Pos) any {
	if !pos.IsValid() {
		return nil
	}
	return map[string]any{"file": pos.Filename(), "line": pos.Line(), "column": pos.Column()}
}
