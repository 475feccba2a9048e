package evaluator

import (
	"os"
	"strings"

	"github.com/funvibe/taffy/internal/ast"
	"github.com/funvibe/taffy/internal/utils"
)

// evalImport records the import for class lookup and loads the source
// files it names when they exist next to the importing file. Imports
// of builtin packages never touch the disk.
func (ev *Evaluator) evalImport(imp *ast.Import) (*Object, error) {
	for _, known := range ev.imports {
		if known.Wild == imp.Wild && known.Name() == imp.Name() {
			return ev.rt.nilObject, nil
		}
	}
	ev.imports = append(ev.imports, imp)

	if isCorePackage(imp.Name()) || (!imp.Wild && ev.lookupClass(imp.Name()) != nil) {
		return ev.rt.nilObject, nil
	}
	files, err := ev.importFiles(imp)
	if err != nil {
		return nil, ev.throwNew("FileOpenException", imp.Name())
	}
	for _, file := range files {
		if err := ev.load(file); err != nil {
			return nil, err
		}
	}
	return ev.rt.nilObject, nil
}

func isCorePackage(name string) bool {
	for _, p := range corePackages {
		if name == p || strings.HasPrefix(name, p+".") {
			return true
		}
	}
	return false
}

// importFiles maps a.b.C to a/b/C.ty and a.b.* to every source file in
// a/b. Missing files are not an error; the classes may be defined by
// other means.
func (ev *Evaluator) importFiles(imp *ast.Import) ([]string, error) {
	root := utils.ModuleDir(ev.file)
	if imp.Wild {
		return utils.SourceFiles(root, imp.Path)
	}
	file, err := utils.ImportFile(root, imp.Path)
	if err != nil || file == "" {
		return nil, err
	}
	return []string{file}, nil
}

// load evaluates a source file on a clone so its package statement
// does not leak into the importer.
func (ev *Evaluator) load(file string) error {
	if !ev.rt.markLoaded(file) {
		return nil
	}
	source, err := os.ReadFile(file)
	if err != nil {
		return ev.throwNew("FileOpenException", file)
	}
	ev.logger.Debug("loading import", "file", file)
	c := ev.Clone()
	defer c.Close()
	c.pkg = ""
	c.imports = nil
	_, err = c.EvalString(string(source), file)
	return err
}
