// Command meshc compiles WGSL shaders into SPIR-V blobs for meshview.
//
// Usage:
//
//	meshc [-o dir] [-j n] [-blobs] [-watch] file.wgsl...
//
// Every input is written to dir as a .spv file of the same base name. With
// -blobs a single input is written as the vertex and pixel blob pair that
// the renderer loads from a shader directory.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"github.com/gogpu/meshview/shader"
)

func main() {
	var (
		outDir = flag.String("o", ".", "output directory")
		jobs   = flag.Int("j", runtime.GOMAXPROCS(0), "parallel compile jobs")
		blobs  = flag.Bool("blobs", false, "write "+shader.VertexFile+" and "+shader.PixelFile+" from a single input")
		watch  = flag.Bool("watch", false, "recompile inputs when they change")
	)
	flag.Parse()

	inputs := flag.Args()
	if len(inputs) == 0 {
		inputs = []string{"-"}
	}
	if *blobs && len(inputs) != 1 {
		log.Fatalf("-blobs takes exactly one input, got %d", len(inputs))
	}
	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatalf("Failed to create %s: %v", *outDir, err)
	}

	c := compiler{outDir: *outDir, blobs: *blobs, cache: shader.NewCache(0)}
	if err := c.compileAll(inputs, *jobs); err != nil {
		if !*watch {
			log.Fatalf("Failed to compile: %v", err)
		}
		log.Printf("%v", err)
	}
	if *watch {
		if err := c.watch(inputs); err != nil {
			log.Fatalf("Failed to watch: %v", err)
		}
	}
}

type compiler struct {
	outDir string
	blobs  bool
	// cache skips recompiling unchanged sources; editors often emit
	// several write events for one save.
	cache *shader.Cache
}

// outputs returns the files written for input.
func (c compiler) outputs(input string) []string {
	if c.blobs {
		return []string{
			filepath.Join(c.outDir, shader.VertexFile),
			filepath.Join(c.outDir, shader.PixelFile),
		}
	}
	name := "stdin"
	if input != "-" {
		name = strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	}
	return []string{filepath.Join(c.outDir, name+".spv")}
}

// compile compiles one input; "-" reads the embedded default program.
func (c compiler) compile(input string) error {
	src := shader.Source()
	if input != "-" {
		b, err := os.ReadFile(input)
		if err != nil {
			return errors.Wrapf(err, "read %s", input)
		}
		src = string(b)
	}
	spirv, err := c.cache.Compile(src)
	if err != nil {
		return errors.Wrapf(err, "%s", input)
	}
	for _, out := range c.outputs(input) {
		if err := os.WriteFile(out, spirv, 0o644); err != nil {
			return errors.Wrapf(err, "write %s", out)
		}
		log.Printf("%s -> %s (%d bytes)", input, out, len(spirv))
	}
	return nil
}

// compileAll compiles inputs with at most jobs in parallel and returns
// the first error.
func (c compiler) compileAll(inputs []string, jobs int) error {
	var g errgroup.Group
	g.SetLimit(max(jobs, 1))
	for _, in := range inputs {
		g.Go(func() error { return c.compile(in) })
	}
	return g.Wait()
}

// watch recompiles an input whenever it is written or replaced. It
// watches the containing directories, since editors often save by
// renaming a new file over the old one.
func (c compiler) watch(inputs []string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	watched := make(map[string]bool)
	for _, in := range inputs {
		if in == "-" {
			continue
		}
		abs, err := filepath.Abs(in)
		if err != nil {
			return err
		}
		watched[abs] = true
		if err := w.Add(filepath.Dir(abs)); err != nil {
			return errors.Wrapf(err, "watch %s", filepath.Dir(abs))
		}
	}
	if len(watched) == 0 {
		return errors.New("no files to watch")
	}
	log.Printf("watching %d file(s)", len(watched))

	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !watched[ev.Name] || !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if err := c.compile(ev.Name); err != nil {
				fmt.Fprintln(os.Stderr, err)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Printf("watch: %v", err)
		}
	}
}
