// Command komareader is a terminal demo driving the Book Coordinator over
// a directory of image files. It scans -dir, opens it as a book, and
// accepts navigation commands on stdin, printing the events the
// Coordinator emits as it goes.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/komareader/core/book"
	"github.com/komareader/core/cache"
	"github.com/komareader/core/frame"
	"github.com/komareader/core/pages"
	"github.com/komareader/core/preload"
)

var (
	flagDir        = flag.String("dir", ".", "directory of image files to open as a book")
	flagThumbCache = flag.String("thumb-cache", "", "path to a sqlite durable thumbnail store (empty = memory only)")
	flagManga      = flag.Bool("manga", false, "enable manga-mode defaults (rtl, two-page frames)")
	flagReadOrder  = flag.String("read-order", "ltr", "ltr or rtl")
	flagPageMode   = flag.String("page-mode", "single", "single or wide")
	flagAhead      = flag.Int("ahead", 2, "pages to preload ahead of focus")
	flagBehind     = flag.Int("behind", 1, "pages to preload behind focus")
)

var imageExt = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true, ".bmp": true,
}

func main() {
	flag.Parse()

	entries, err := scanDir(*flagDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "scan error:", err)
		os.Exit(1)
	}
	if len(entries) == 0 {
		fmt.Fprintln(os.Stderr, "no images found in", *flagDir)
		os.Exit(1)
	}

	store, closeStore, err := buildStore(*flagThumbCache)
	if err != nil {
		fmt.Fprintln(os.Stderr, "cache error:", err)
		os.Exit(1)
	}
	defer closeStore()

	cfg := book.DefaultConfig()
	cfg.MangaMode = *flagManga
	cfg.ReadOrder = *flagReadOrder
	cfg.PageMode = *flagPageMode
	cfg.PreloadAhead = *flagAhead
	cfg.PreloadBehind = *flagBehind

	var c *book.Coordinator
	c = book.New(fileLoaders(&c), store, cfg)
	c.Subscribe(&printingObserver{})

	c.Open(*flagDir, entries, book.OpenOptions{})
	defer c.Close()

	runREPL(c)
}

// scanDir lists *flagDir's image files, sorted by name, and turns them
// into book.Entry values with size/mtime already populated.
func scanDir(dir string) ([]book.Entry, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	sort.Slice(dirEntries, func(i, j int) bool { return dirEntries[i].Name() < dirEntries[j].Name() })

	var out []book.Entry
	for _, de := range dirEntries {
		if de.IsDir() || !imageExt[strings.ToLower(filepath.Ext(de.Name()))] {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		out = append(out, book.Entry{
			Name:     de.Name(),
			Locator:  filepath.Join(dir, de.Name()),
			ModTime:  info.ModTime(),
			FileSize: info.Size(),
			Kind:     pages.KindImage,
		})
	}
	return out, nil
}

// buildStore wires up a production-shaped preload.ArtifactCache: a
// cache.Cache with a persistent thumbnail namespace when -thumb-cache is
// given, memory-only otherwise.
func buildStore(thumbCachePath string) (preload.ArtifactCache, func(), error) {
	if thumbCachePath == "" {
		return cache.NewCache(nil, nil), func() {}, nil
	}
	durable, err := cache.OpenSQLiteStore(thumbCachePath)
	if err != nil {
		return nil, nil, err
	}
	cfgs := map[preload.Kind]cache.NamespaceConfig{
		preload.KindThumbnail: {Name: "thumbnail", Persistent: true, ItemCap: 2000, ByteCap: 200 * 1024 * 1024},
	}
	return cache.NewCache(cfgs, durable), func() { durable.Close() }, nil
}

// fileLoaders reads the source file directly for both the image and
// thumbnail kinds, resolving a virtual index to its physical locator via
// the Coordinator (c is set right after book.New returns, before Open
// runs any loader). Real thumbnail generation (resize/recompress) and
// upscaling need a native image decoder, out of scope here; see
// spec.md's Non-goals.
func fileLoaders(c **book.Coordinator) preload.Loaders {
	read := func(ctx context.Context, vi int) ([]byte, error) {
		locator, ok := (*c).Locator(vi)
		if !ok {
			return nil, fmt.Errorf("index %d has no physical locator", vi)
		}
		return os.ReadFile(locator)
	}
	return preload.Loaders{
		Image:     read,
		Thumbnail: read,
	}
}

// printingObserver prints the Coordinator's book-open, book-close,
// page-change, pages-rebuilt and preload-task-complete events, prefixed
// with their kind, so a user driving the REPL can see what's happening
// behind the scenes. Preload task-start, queue-change and focus-change
// events are not printed.
type printingObserver struct {
	book.NoopObserver
}

func (printingObserver) OnBookOpen(info book.Info) {
	fmt.Printf("[book-open] %s (%d pages)\n", info.Locator, info.PageCount)
}

func (printingObserver) OnBookClose() {
	fmt.Println("[book-close]")
}

func (printingObserver) OnPageChange(index int, f *frame.Frame) {
	if f == nil {
		fmt.Printf("[page-change] index=%d (no frame)\n", index)
		return
	}
	names := make([]string, len(f.Elements))
	for i, el := range f.Elements {
		names[i] = strconv.Itoa(el.VirtualIndex)
	}
	fmt.Printf("[page-change] index=%d frame=[%s]\n", index, strings.Join(names, ","))
}

func (printingObserver) OnPagesRebuilt() {
	fmt.Println("[pages-rebuilt]")
}

func (printingObserver) OnPreloadTaskComplete(fp preload.Fingerprint, result preload.Result) {
	if result.Err != nil {
		fmt.Printf("[preload] %s failed: %v\n", fp, result.Err)
		return
	}
	fmt.Printf("[preload] %s ready (%d bytes)\n", fp, len(result.Data))
}

func runREPL(c *book.Coordinator) {
	sc := bufio.NewScanner(os.Stdin)

	interactive := false
	if fi, err := os.Stdin.Stat(); err == nil {
		interactive = (fi.Mode() & os.ModeCharDevice) != 0
	}

	if interactive {
		fmt.Println("komareader demo. Type .help for commands.")
	}

	for {
		if interactive {
			fmt.Print("> ")
		}
		if !sc.Scan() {
			return
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if !handleCommand(c, line) {
			return
		}
	}
}

func handleCommand(c *book.Coordinator, line string) bool {
	fields := strings.Fields(line)
	cmd := fields[0]

	switch cmd {
	case ".help":
		fmt.Println(`
.help            show this message
.quit            exit
next             advance one frame
prev             go back one frame
first            jump to the first page
last             jump to the last page
goto N           jump to virtual index N
search TEXT      filter pages by keyword (empty clears)
info             print current frame and index`)
	case ".quit":
		return false
	case "next":
		c.NextFrame()
	case "prev":
		c.PrevFrame()
	case "first":
		c.First()
	case "last":
		c.Last()
	case "goto":
		if len(fields) < 2 {
			fmt.Println("usage: goto N")
			break
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			fmt.Println("not a number:", fields[1])
			break
		}
		c.GoTo(n)
	case "search":
		keyword := ""
		if len(fields) > 1 {
			keyword = strings.Join(fields[1:], " ")
		}
		c.SetSearch(keyword)
	case "info":
		fmt.Printf("index=%d frame=%v\n", c.CurrentIndex(), c.CurrentFrame())
	default:
		fmt.Println("unknown command:", cmd, "(try .help)")
	}

	// Allow the debounced preload focus update to settle before the next
	// prompt, purely so the [preload] lines print in a readable order.
	time.Sleep(10 * time.Millisecond)
	return true
}
