package formdata

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	spew "github.com/davecgh/go-spew/spew"

	"lfupload/lib/hashtools"
)

const xyzBody = "--XYZ\r\n" +
	"Content-Disposition: form-data; name=\"field1\"\r\n\r\n" +
	"value1\r\n" +
	"--XYZ\r\n" +
	"Content-Disposition: form-data; name=\"file1\"; filename=\"a.txt\"\r\n\r\n" +
	"hello world\r\n" +
	"--XYZ--\r\n"

func postEnv(boundary string) map[string]string {
	return map[string]string{
		"REQUEST_METHOD": "POST",
		"CONTENT_TYPE":   "multipart/form-data; boundary=" + boundary,
	}
}

func newTestUploader(t *testing.T, cfg Config) *Uploader {
	t.Helper()
	if cfg.Env == nil {
		cfg.Env = postEnv("XYZ")
	}
	if cfg.TempDir == "" {
		cfg.TempDir = t.TempDir()
	}
	u, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return u
}

type closeCounter struct {
	io.Reader
	closed int
}

func (c *closeCounter) Close() error {
	c.closed++
	return nil
}

// touchReader fails test if anything tries to read it
type touchReader struct {
	t      *testing.T
	closed bool
}

func (r *touchReader) Read([]byte) (int, error) {
	r.t.Error("body was read")
	return 0, io.ErrUnexpectedEOF
}

func (r *touchReader) Close() error {
	r.closed = true
	return nil
}

func readString(t *testing.T, u *Uploader, body string, annoy bool) (Parts, error) {
	var r io.Reader = strings.NewReader(body)
	if annoy {
		r = annoyingReader{r}
	}
	cc := &closeCounter{Reader: r}
	parts, err := u.Read(cc)
	if cc.closed != 1 {
		t.Errorf("input closed %d times", cc.closed)
	}
	return parts, err
}

func fileContent(t *testing.T, name string) string {
	t.Helper()
	b, err := os.ReadFile(name)
	if err != nil {
		t.Fatalf("reading %q: %v", name, err)
	}
	return string(b)
}

func countFiles(t *testing.T, dir string) int {
	t.Helper()
	ents, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	return len(ents)
}

func TestReadXYZ(t *testing.T) {
	u := newTestUploader(t, Config{})
	parts, err := readString(t, u, xyzBody, false)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	t.Logf("parts: %s", spew.Sdump(parts))
	if len(parts) != 2 {
		t.Fatalf("got %d parts", len(parts))
	}

	f := parts[0]
	if f.IsFile() || f.Name() != "field1" || string(f.Content) != "value1" {
		t.Errorf("bad field part: %s", spew.Sdump(f))
	}
	if _, ok := f.Header("filename"); ok {
		t.Errorf("field part has filename")
	}
	if v, _ := f.Header("Content-Disposition"); v != "form-data" {
		t.Errorf("Content-Disposition %q", v)
	}

	p := parts[1]
	if !p.IsFile() || p.Name() != "file1" || p.FileName() != "a.txt" {
		t.Errorf("bad file part: %s", spew.Sdump(p))
	}
	if p.Content != nil {
		t.Errorf("file part has content %q", p.Content)
	}
	if filepath.Dir(p.File) != u.TempDir() {
		t.Errorf("file %q not in %q", p.File, u.TempDir())
	}
	if !strings.HasPrefix(filepath.Base(p.File), tempPrefix) {
		t.Errorf("file %q lacks prefix", p.File)
	}
	if c := fileContent(t, p.File); c != "hello world" || p.Size != 11 {
		t.Errorf("file content %q size %d", c, p.Size)
	}

	if v, ok := parts.Field("field1"); !ok || string(v) != "value1" {
		t.Errorf("Field: %q %v", v, ok)
	}
	if fs := parts.Files("file1"); len(fs) != 1 || fs[0].File != p.File {
		t.Errorf("Files: %v", fs)
	}

	if err = parts.RemoveAll(); err != nil {
		t.Fatal(err)
	}
	if n := countFiles(t, u.TempDir()); n != 0 {
		t.Errorf("%d files left after RemoveAll", n)
	}
}

type partSummary struct {
	Headers [][2]string
	Content string
	IsFile  bool
}

func summarize(t *testing.T, parts Parts) (r []partSummary) {
	for _, p := range parts {
		s := partSummary{Headers: headerPairs(p.Headers), IsFile: p.IsFile()}
		if p.IsFile() {
			s.Content = fileContent(t, p.File)
		} else {
			s.Content = string(p.Content)
		}
		r = append(r, s)
	}
	return
}

type testPart struct {
	name     string
	filename string
	content  string
}

func buildBody(boundary string, parts []testPart) string {
	var sb strings.Builder
	for _, p := range parts {
		sb.WriteString("--" + boundary + "\r\n")
		sb.WriteString(`Content-Disposition: form-data; name="` + p.name + `"`)
		if p.filename != "" {
			sb.WriteString(`; filename="` + p.filename + `"` + "\r\n")
			sb.WriteString("Content-Type: application/octet-stream")
		}
		sb.WriteString("\r\n\r\n")
		sb.WriteString(p.content)
		sb.WriteString("\r\n")
	}
	sb.WriteString("--" + boundary + "--\r\n")
	return sb.String()
}

// pattern produces content which has many near-boundary sequences
func pattern(n int) string {
	b := make([]byte, n)
	const alpha = "\r\n--XY\r\n-abc\r\r"
	for i := range b {
		b[i] = alpha[(i*7+i/13)%len(alpha)]
	}
	return string(b)
}

func TestChunkSizeInvariance(t *testing.T) {
	chunks := []int{1, 7, 8192, 1000000}

	// contents of every length around chunk sizes put delimiter
	// at every offset relative to read splits
	var tparts []testPart
	for i := 0; i < 20; i++ {
		tparts = append(tparts, testPart{name: fmt.Sprintf("f%d", i), content: pattern(i)})
	}
	for i := 8180; i < 8200; i += 3 {
		tparts = append(tparts, testPart{
			name:     fmt.Sprintf("file%d", i),
			filename: fmt.Sprintf("blob%d.bin", i),
			content:  pattern(i),
		})
	}
	tparts = append(tparts, testPart{name: "empty"})
	tparts = append(tparts, testPart{name: "emptyfile", filename: "e"})
	body := buildBody("XYZ", tparts)

	// first content read of 8192 bytes ends inside delimiter "\r\n--XYZ"
	straddle := strings.Repeat("x", DefaultChunkSize-3)
	straddleBody := buildBody("XYZ", []testPart{{name: "s", content: straddle}, {name: "t", content: "tail"}})

	for _, in := range []string{body, straddleBody} {
		var ref []partSummary
		for _, annoy := range []bool{false, true} {
			for _, chunk := range chunks {
				u := newTestUploader(t, Config{ChunkSize: chunk})
				parts, err := readString(t, u, in, annoy)
				if err != nil {
					t.Fatalf("chunk=%d annoy=%v: %v", chunk, annoy, err)
				}
				sum := summarize(t, parts)
				if ref == nil {
					ref = sum
					continue
				}
				if !reflect.DeepEqual(sum, ref) {
					t.Fatalf("chunk=%d annoy=%v: result differs", chunk, annoy)
				}
			}
		}
		if in == body {
			if len(ref) != len(tparts) {
				t.Fatalf("got %d parts, expected %d", len(ref), len(tparts))
			}
			for i, tp := range tparts {
				if ref[i].Content != tp.content || ref[i].IsFile != (tp.filename != "") {
					t.Errorf("part %d (%s) mismatch", i, tp.name)
				}
			}
		} else if len(ref) != 2 || ref[0].Content != straddle || ref[1].Content != "tail" {
			t.Errorf("straddle body decoded wrong: %d parts", len(ref))
		}
	}
}

func TestEmptyParts(t *testing.T) {
	body := buildBody("XYZ", []testPart{
		{name: "a"},
		{name: "b", filename: "b.txt"},
	})
	u := newTestUploader(t, Config{})
	parts, err := readString(t, u, body, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(parts) != 2 {
		t.Fatalf("got %d parts", len(parts))
	}
	if parts[0].Content == nil || len(parts[0].Content) != 0 {
		t.Errorf("empty field content %#v", parts[0].Content)
	}
	if !parts[1].IsFile() || parts[1].Size != 0 {
		t.Errorf("empty file part %s", spew.Sdump(parts[1]))
	}
	if c := fileContent(t, parts[1].File); c != "" {
		t.Errorf("empty file has %q", c)
	}
}

func TestFilenameSanitized(t *testing.T) {
	body := buildBody("XYZ", []testPart{
		{name: "a", filename: "../../etc/passwd", content: "root"},
		{name: "b", filename: `C:\temp\x.txt`, content: "x"},
	})
	u := newTestUploader(t, Config{})
	parts, err := readString(t, u, body, false)
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := parts[0].Header("filename"); v != "passwd" {
		t.Errorf("filename %q", v)
	}
	if v := parts[1].FileName(); v != "x.txt" {
		t.Errorf("filename %q", v)
	}
	for _, p := range parts {
		if filepath.Dir(p.File) != u.TempDir() {
			t.Errorf("file %q escaped temp dir", p.File)
		}
	}
}

func TestPreamble(t *testing.T) {
	u := newTestUploader(t, Config{})
	_, err := readString(t, u, "junk\r\n"+xyzBody, false)
	if !errors.Is(err, ErrStreamFormat) {
		t.Errorf("expected ErrStreamFormat, got %v", err)
	}
}

func TestMissingName(t *testing.T) {
	body := "--XYZ\r\nContent-Disposition: form-data; filename=\"a\"\r\n\r\nx\r\n--XYZ--\r\n"
	u := newTestUploader(t, Config{})
	parts, err := readString(t, u, body, false)
	if !errors.Is(err, ErrMissingName) || !errors.Is(err, ErrStreamFormat) {
		t.Errorf("expected ErrMissingName, got %v", err)
	}
	if parts != nil {
		t.Errorf("got parts on error: %v", parts)
	}
}

func TestMalformedHeader(t *testing.T) {
	body := "--XYZ\r\nContent-Disposition form-data\r\n\r\nx\r\n--XYZ--\r\n"
	u := newTestUploader(t, Config{})
	_, err := readString(t, u, body, false)
	if !errors.Is(err, ErrHeaderMalformed) {
		t.Errorf("expected ErrHeaderMalformed, got %v", err)
	}
	if KindOf(err) != ErrHeaderMalformed {
		t.Errorf("KindOf = %v", KindOf(err))
	}
}

func TestPreconditionsBeforeRead(t *testing.T) {
	cases := []struct {
		env map[string]string
		err error
	}{
		{map[string]string{"REQUEST_METHOD": "GET", "CONTENT_TYPE": "multipart/form-data; boundary=XYZ"}, ErrMethod},
		{map[string]string{"CONTENT_TYPE": "multipart/form-data; boundary=XYZ"}, ErrMethod},
		{map[string]string{"REQUEST_METHOD": "POST", "CONTENT_TYPE": "multipart/form-data"}, ErrBoundaryMissing},
		{map[string]string{"REQUEST_METHOD": "POST", "CONTENT_TYPE": "text/plain"}, ErrContentType},
		{map[string]string{"REQUEST_METHOD": "POST"}, ErrContentType},
	}
	for _, c := range cases {
		u := newTestUploader(t, Config{Env: c.env})
		tr := &touchReader{t: t}
		parts, err := u.Read(tr)
		if !errors.Is(err, c.err) {
			t.Errorf("%v: expected %v, got %v", c.env, c.err, err)
		}
		if parts != nil {
			t.Errorf("%v: got parts", c.env)
		}
		if !tr.closed {
			t.Errorf("%v: input not closed", c.env)
		}
	}
}

func TestReadNil(t *testing.T) {
	u := newTestUploader(t, Config{})
	if _, err := u.Read(nil); !errors.Is(err, ErrStreamOpen) {
		t.Errorf("expected ErrStreamOpen, got %v", err)
	}
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "body")
	if err := os.WriteFile(name, []byte(xyzBody), 0600); err != nil {
		t.Fatal(err)
	}
	u := newTestUploader(t, Config{})
	parts, err := u.ReadFile(name)
	if err != nil {
		t.Fatal(err)
	}
	if len(parts) != 2 {
		t.Fatalf("got %d parts", len(parts))
	}

	_, err = u.ReadFile(filepath.Join(dir, "nonexistent"))
	if !errors.Is(err, ErrStreamOpen) || !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected ErrStreamOpen, got %v", err)
	}

	u = newTestUploader(t, Config{Env: map[string]string{"REQUEST_METHOD": "PUT"}})
	if _, err = u.ReadFile(filepath.Join(dir, "nonexistent")); !errors.Is(err, ErrMethod) {
		t.Errorf("expected ErrMethod first, got %v", err)
	}
}

func TestIncompleteStream(t *testing.T) {
	u := newTestUploader(t, Config{})
	for _, n := range []int{0, 5, 30, 80, len(xyzBody) - 20, len(xyzBody) - 9} {
		_, err := readString(t, u, xyzBody[:n], false)
		if !errors.Is(err, ErrIncompleteStream) {
			t.Errorf("truncated at %d: expected ErrIncompleteStream, got %v", n, err)
		}
	}

	_, err := readString(t, u, xyzBody[:len(xyzBody)-20], true)
	left := Leftover(err)
	if len(left) != 1 {
		t.Fatalf("expected one leftover file, got %q", left)
	}
	if c := fileContent(t, left[0]); !strings.HasPrefix("hello world", c) {
		t.Errorf("leftover content %q", c)
	}
	if err = Parts([]Part{{File: left[0]}}).RemoveAll(); err != nil {
		t.Fatal(err)
	}
}

func TestGarbageAfterBoundary(t *testing.T) {
	body := strings.Replace(xyzBody, "--XYZ\r\nContent-Disposition: form-data; name=\"file1\"",
		"--XYZjunk\r\nContent-Disposition: form-data; name=\"file1\"", 1)
	u := newTestUploader(t, Config{})
	if _, err := readString(t, u, body, false); !errors.Is(err, ErrStreamFormat) {
		t.Errorf("expected ErrStreamFormat, got %v", err)
	}
}

func TestBareLF(t *testing.T) {
	// headers may end with bare LF; content delimiter needs CRLF
	body := "--XYZ\nContent-Disposition: form-data; name=\"a\"\n\nv\n--XYZ\r\n--XYZ--"
	u := newTestUploader(t, Config{})
	parts, err := readString(t, u, body, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(parts) != 1 || string(parts[0].Content) != "v\n--XYZ" {
		t.Errorf("got %s", spew.Sdump(parts))
	}
}

func TestLimits(t *testing.T) {
	big := strings.Repeat("z", 100)
	body := buildBody("XYZ", []testPart{
		{name: "a", content: big},
		{name: "b", content: big},
		{name: "f1", filename: "1", content: big},
		{name: "f2", filename: "2", content: big},
	})
	cases := []struct {
		name   string
		limits Limits
		ok     bool
		files  int
	}{
		{"unlimited", Limits{}, true, 2},
		{"defaults", DefaultLimits, true, 2},
		{"header", Limits{MaxHeaderBytes: 30}, false, 0},
		{"memory", Limits{MaxMemory: 150}, false, 0},
		{"memory fits", Limits{MaxMemory: 200}, true, 2},
		{"fields", Limits{MaxFields: 1}, false, 0},
		{"file count", Limits{MaxFileCount: 1}, false, 1},
		{"file size", Limits{MaxFileSingleSize: 99}, false, 1},
		{"file size fits", Limits{MaxFileSingleSize: 100}, true, 2},
		{"all files", Limits{MaxFileAllSize: 150}, false, 2},
	}
	for _, c := range cases {
		u := newTestUploader(t, Config{Limits: c.limits, ChunkSize: 16})
		parts, err := readString(t, u, body, false)
		if c.ok {
			if err != nil {
				t.Errorf("%s: unexpected err: %v", c.name, err)
			} else if len(parts) != 4 {
				t.Errorf("%s: got %d parts", c.name, len(parts))
			}
		} else if !errors.Is(err, ErrLimitExceeded) {
			t.Errorf("%s: expected ErrLimitExceeded, got %v", c.name, err)
		}
		if n := countFiles(t, u.TempDir()); n != c.files {
			t.Errorf("%s: %d files in temp dir, expected %d", c.name, n, c.files)
		}
		if len(Leftover(err)) != countFiles(t, u.TempDir()) && !c.ok {
			t.Errorf("%s: leftover %q doesn't list all files", c.name, Leftover(err))
		}
	}
}

func TestFieldFilters(t *testing.T) {
	body := buildBody("XYZ", []testPart{
		{name: "title", content: "t"},
		{name: "secret", content: "s"},
		{name: "attach[0]", filename: "a", content: "aa"},
		{name: "other", filename: "o", content: "oo"},
		{name: "attach[1]", filename: "b", content: "bb"},
	})
	u := newTestUploader(t, Config{
		Fields:     []string{"title", "tag*"},
		FileFields: []string{"attach*", "{photo,video}"},
	})
	parts, err := readString(t, u, body, true)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, p := range parts {
		names = append(names, p.Name())
	}
	if !reflect.DeepEqual(names, []string{"title", "attach[0]", "attach[1]"}) {
		t.Errorf("kept %q", names)
	}
	if n := countFiles(t, u.TempDir()); n != 2 {
		t.Errorf("%d files created", n)
	}
}

func TestHashing(t *testing.T) {
	content := pattern(10000)
	body := buildBody("XYZ", []testPart{
		{name: "f", filename: "f.bin", content: content},
		{name: "v", content: "x"},
	})
	for _, ht := range []hashtools.HashType{
		hashtools.SHA2_224, hashtools.BLAKE2b_224, hashtools.BLAKE3_224, hashtools.HighwayHash,
	} {
		u := newTestUploader(t, Config{HashType: ht, ChunkSize: 7})
		parts, err := readString(t, u, body, false)
		if err != nil {
			t.Fatalf("%v: %v", ht, err)
		}
		exp, err := hashtools.MakeFileHash(bytes.NewReader([]byte(content)), ht)
		if err != nil {
			t.Fatal(err)
		}
		if parts[0].Hash != exp {
			t.Errorf("%v: hash %q, expected %q", ht, parts[0].Hash, exp)
		}
		if parts[1].Hash != "" {
			t.Errorf("%v: field part has hash", ht)
		}
	}

	u := newTestUploader(t, Config{})
	parts, err := readString(t, u, body, false)
	if err != nil {
		t.Fatal(err)
	}
	if parts[0].Hash != "" {
		t.Errorf("hash %q without hashing enabled", parts[0].Hash)
	}
}

func TestNormalizeFileNames(t *testing.T) {
	body := buildBody("XYZ", []testPart{{name: "f", filename: "cafe\u0301.txt", content: "c"}})
	for _, norm := range []bool{false, true} {
		u := newTestUploader(t, Config{NormalizeFileNames: norm})
		parts, err := readString(t, u, body, false)
		if err != nil {
			t.Fatal(err)
		}
		exp := "cafe\u0301.txt"
		if norm {
			exp = "caf\u00e9.txt"
		}
		if parts[0].FileName() != exp {
			t.Errorf("normalize=%v: filename %q", norm, parts[0].FileName())
		}
	}
}

func TestBoundaryQuoted(t *testing.T) {
	env := map[string]string{
		"REQUEST_METHOD": "POST",
		"CONTENT_TYPE":   `multipart/form-data; boundary="a b"`,
	}
	u := newTestUploader(t, Config{Env: env})
	parts, err := readString(t, u, buildBody("a b", []testPart{{name: "x", content: "y"}}), false)
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := parts.Field("x"); string(v) != "y" {
		t.Errorf("got %q", v)
	}
}

type failingReader struct {
	data []byte
	err  error
}

func (r *failingReader) Read(b []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, r.err
	}
	n := copy(b, r.data)
	r.data = r.data[n:]
	return n, nil
}

func TestReadError(t *testing.T) {
	ioerr := errors.New("connection reset")
	u := newTestUploader(t, Config{})
	_, err := u.Read(io.NopCloser(&failingReader{data: []byte(xyzBody[:100]), err: ioerr}))
	if !errors.Is(err, ErrIO) || !errors.Is(err, ioerr) {
		t.Errorf("expected ErrIO wrapping cause, got %v", err)
	}
}

func TestConcurrentReads(t *testing.T) {
	u := newTestUploader(t, Config{ChunkSize: 7})
	errs := make(chan error, 8)
	for i := 0; i < cap(errs); i++ {
		go func() {
			parts, err := u.Read(io.NopCloser(strings.NewReader(xyzBody)))
			if err == nil && len(parts) != 2 {
				err = fmt.Errorf("got %d parts", len(parts))
			}
			errs <- err
		}()
	}
	for i := 0; i < cap(errs); i++ {
		if err := <-errs; err != nil {
			t.Error(err)
		}
	}
	if n := countFiles(t, u.TempDir()); n != cap(errs) {
		t.Errorf("%d files for %d reads", n, cap(errs))
	}
}
