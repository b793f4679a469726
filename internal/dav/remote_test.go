package dav

// A fake gofile API for filesystem tests: content tree, uploads, deletes,
// renames, ranged downloads and the bypass listing, all in memory.

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/synthlace/gofile-dav/internal/dircache"
	"github.com/synthlace/gofile-dav/internal/gofile"
	"github.com/synthlace/gofile-dav/internal/utils"
)

type fakeFile struct {
	id        string
	name      string
	parent    string
	data      []byte
	canAccess bool
	frozen    bool
}

type fakeFolder struct {
	id     string
	name   string
	code   string
	parent string
	public bool
}

type fakeRemote struct {
	t   *testing.T
	srv *httptest.Server

	mu            sync.Mutex
	folders       map[string]*fakeFolder
	files         map[string]*fakeFile
	rootID        string
	nextCode      int
	contentsCalls int
	bypassCalls   int
	downloadAuths []string
	proxyAuths    []string
}

func newFakeRemote(t *testing.T) *fakeRemote {
	r := &fakeRemote{
		t:       t,
		folders: make(map[string]*fakeFolder),
		files:   make(map[string]*fakeFile),
	}
	root := &fakeFolder{id: uuid.NewString(), name: "root", code: "rootcode"}
	r.folders[root.id] = root
	r.rootID = root.id

	mux := http.NewServeMux()
	mux.HandleFunc("/dist/js/global.js", func(w http.ResponseWriter, req *http.Request) {
		fmt.Fprint(w, `appdata.wt = "test-wt";`)
	})
	mux.HandleFunc("/accounts/website", r.handleAccount)
	mux.HandleFunc("/contents/createfolder", r.handleCreateFolder)
	mux.HandleFunc("/contents", r.handleDelete)
	mux.HandleFunc("/contents/", r.handleContents)
	mux.HandleFunc("/uploadfile", r.handleUpload)
	mux.HandleFunc("/dl/", r.handleDownload)
	mux.HandleFunc("/proxy/", r.handleProxyDownload)
	mux.HandleFunc("/api/files", r.handleBypassList)

	r.srv = httptest.NewServer(mux)
	t.Cleanup(r.srv.Close)
	return r
}

func (r *fakeRemote) root() *fakeFolder {
	return r.folders[r.rootID]
}

func (r *fakeRemote) addFolder(parent *fakeFolder, name string) *fakeFolder {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextCode++
	f := &fakeFolder{
		id:     uuid.NewString(),
		name:   name,
		code:   fmt.Sprintf("code%d", r.nextCode),
		parent: parent.id,
		public: parent.public,
	}
	r.folders[f.id] = f
	return f
}

func (r *fakeRemote) addFile(parent *fakeFolder, name string, data []byte) *fakeFile {
	r.mu.Lock()
	defer r.mu.Unlock()
	f := &fakeFile{
		id:        uuid.NewString(),
		name:      name,
		parent:    parent.id,
		data:      data,
		canAccess: true,
	}
	r.files[f.id] = f
	return f
}

// filesNamed returns the files called name directly under folder.
func (r *fakeRemote) filesNamed(folder *fakeFolder, name string) []*fakeFile {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*fakeFile
	for _, f := range r.files {
		if f.parent == folder.id && f.name == name {
			out = append(out, f)
		}
	}
	return out
}

func (r *fakeRemote) findFolder(idOrCode string) *fakeFolder {
	for _, f := range r.folders {
		if f.id == idOrCode || f.code == idOrCode {
			return f
		}
	}
	return nil
}

func (r *fakeRemote) fileJSON(f *fakeFile) map[string]any {
	sum := md5.Sum(f.data)
	return map[string]any{
		"type": "file", "canAccess": f.canAccess, "isFrozen": f.frozen,
		"id": f.id, "name": f.name, "size": len(f.data),
		"createTime": 1719990416, "modTime": 1719990417,
		"md5":  hex.EncodeToString(sum[:]),
		"link": r.srv.URL + "/dl/" + f.id, "parentFolder": f.parent,
		"mimetype": "application/octet-stream",
	}
}

func (r *fakeRemote) folderJSON(f *fakeFolder, withChildren bool) map[string]any {
	out := map[string]any{
		"type": "folder", "canAccess": true,
		"id": f.id, "name": f.name, "code": f.code,
		"public": f.public, "isOwner": true,
		"createTime": 1719990416, "modTime": 1719990417, "totalSize": 0,
	}
	if f.parent != "" {
		out["parentFolder"] = f.parent
	}
	if withChildren {
		children := map[string]any{}
		for _, child := range r.folders {
			if child.parent == f.id {
				children[child.id] = r.folderJSON(child, false)
			}
		}
		for _, child := range r.files {
			if child.parent == f.id {
				children[child.id] = r.fileJSON(child)
			}
		}
		out["children"] = children
	}
	return out
}

func writeEnvelope(w http.ResponseWriter, status string, data any) {
	_ = json.NewEncoder(w).Encode(map[string]any{"status": status, "data": data})
}

func (r *fakeRemote) handleAccount(w http.ResponseWriter, req *http.Request) {
	writeEnvelope(w, "ok", map[string]any{
		"id": "acct", "email": "tester@example.com", "tier": "guest",
		"token": "tok", "rootFolder": r.rootID,
	})
}

func (r *fakeRemote) handleContents(w http.ResponseWriter, req *http.Request) {
	id := strings.TrimPrefix(req.URL.Path, "/contents/")

	if req.Method == http.MethodPut && strings.HasSuffix(id, "/update") {
		r.handleUpdate(w, req, strings.TrimSuffix(id, "/update"))
		return
	}

	r.mu.Lock()
	r.contentsCalls++
	r.mu.Unlock()

	if req.URL.Query().Get("wt") == "" {
		writeEnvelope(w, "error-auth", map[string]any{})
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if folder := r.findFolder(id); folder != nil {
		writeEnvelope(w, "ok", r.folderJSON(folder, true))
		return
	}
	if file, ok := r.files[id]; ok {
		writeEnvelope(w, "ok", r.fileJSON(file))
		return
	}
	writeEnvelope(w, "error-notFound", map[string]any{})
}

func (r *fakeRemote) handleUpdate(w http.ResponseWriter, req *http.Request, id string) {
	var body struct {
		Attribute      string `json:"attribute"`
		AttributeValue string `json:"attributeValue"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.Attribute != "name" {
		writeEnvelope(w, "error-wrongAttribute", map[string]any{})
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if f, ok := r.files[id]; ok {
		f.name = body.AttributeValue
		writeEnvelope(w, "ok", r.fileJSON(f))
		return
	}
	if f, ok := r.folders[id]; ok {
		f.name = body.AttributeValue
		writeEnvelope(w, "ok", r.folderJSON(f, false))
		return
	}
	writeEnvelope(w, "error-notFound", map[string]any{})
}

func (r *fakeRemote) handleCreateFolder(w http.ResponseWriter, req *http.Request) {
	var body struct {
		FolderName     string `json:"folderName"`
		ParentFolderID string `json:"parentFolderId"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeEnvelope(w, "error-badRequest", map[string]any{})
		return
	}
	r.mu.Lock()
	parent, ok := r.folders[body.ParentFolderID]
	r.mu.Unlock()
	if !ok {
		writeEnvelope(w, "error-notFound", map[string]any{})
		return
	}
	created := r.addFolder(parent, body.FolderName)
	writeEnvelope(w, "ok", map[string]any{
		"id": created.id, "name": created.name, "code": created.code,
		"parentFolder": parent.id, "createTime": 1, "modTime": 2, "type": "folder",
	})
}

func (r *fakeRemote) handleDelete(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodDelete {
		http.NotFound(w, req)
		return
	}
	var body struct {
		ContentsID string `json:"contentsId"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeEnvelope(w, "error-badRequest", map[string]any{})
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	results := map[string]any{}
	for _, id := range strings.Split(body.ContentsID, ",") {
		if _, ok := r.files[id]; ok {
			delete(r.files, id)
			results[id] = map[string]string{"status": "ok"}
			continue
		}
		if _, ok := r.folders[id]; ok {
			delete(r.folders, id)
			results[id] = map[string]string{"status": "ok"}
			continue
		}
		results[id] = map[string]string{"status": "error-notFound"}
	}
	writeEnvelope(w, "ok", results)
}

func (r *fakeRemote) handleUpload(w http.ResponseWriter, req *http.Request) {
	if err := req.ParseMultipartForm(16 << 20); err != nil {
		writeEnvelope(w, "error-badRequest", map[string]any{})
		return
	}
	r.mu.Lock()
	parent, ok := r.folders[req.FormValue("folderId")]
	r.mu.Unlock()
	if !ok {
		writeEnvelope(w, "error-notFound", map[string]any{})
		return
	}
	part, header, err := req.FormFile("file")
	if err != nil {
		writeEnvelope(w, "error-badRequest", map[string]any{})
		return
	}
	defer part.Close()
	data, err := io.ReadAll(part)
	if err != nil {
		writeEnvelope(w, "error-badRequest", map[string]any{})
		return
	}

	created := r.addFile(parent, header.Filename, data)
	sum := md5.Sum(data)
	writeEnvelope(w, "ok", map[string]any{
		"id": created.id, "name": created.name, "size": len(data),
		"createTime": 1, "modTime": 2, "md5": hex.EncodeToString(sum[:]),
		"parentFolder": parent.id, "mimetype": "application/octet-stream",
		"type": "file",
	})
}

func (r *fakeRemote) handleDownload(w http.ResponseWriter, req *http.Request) {
	id := strings.TrimPrefix(req.URL.Path, "/dl/")
	r.mu.Lock()
	file, ok := r.files[id]
	r.downloadAuths = append(r.downloadAuths, req.Header.Get("Authorization"))
	r.mu.Unlock()
	if !ok {
		http.NotFound(w, req)
		return
	}
	http.ServeContent(w, req, file.name, time.Unix(1719990417, 0), bytes.NewReader(file.data))
}

func (r *fakeRemote) handleProxyDownload(w http.ResponseWriter, req *http.Request) {
	id := strings.TrimPrefix(req.URL.Path, "/proxy/")
	r.mu.Lock()
	file, ok := r.files[id]
	r.proxyAuths = append(r.proxyAuths, req.Header.Get("Authorization"))
	r.mu.Unlock()
	if !ok {
		http.NotFound(w, req)
		return
	}
	http.ServeContent(w, req, file.name, time.Unix(1719990417, 0), bytes.NewReader(file.data))
}

func (r *fakeRemote) handleBypassList(w http.ResponseWriter, req *http.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bypassCalls++
	folder := r.findFolder(req.URL.Query().Get("folderId"))
	if folder == nil {
		w.WriteHeader(http.StatusBadGateway)
		return
	}
	var listing []map[string]any
	for _, f := range r.files {
		if f.parent != folder.id {
			continue
		}
		listing = append(listing, map[string]any{
			"name": f.name, "size": len(f.data),
			"link":       r.srv.URL + "/dl/" + f.id,
			"proxy_link": r.srv.URL + "/proxy/" + f.id,
		})
	}
	writeEnvelope(w, "success", listing)
}

func (r *fakeRemote) countContentsCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.contentsCalls
}

// newTestFS builds a filesystem over the fake remote with a fresh cache.
func newTestFS(t *testing.T, r *fakeRemote, readOnly, bypass bool) *FileSystem {
	client := gofile.NewClient(gofile.Options{
		HTTPClient:   r.srv.Client(),
		APIToken:     "tok",
		UseBypass:    bypass,
		Logger:       zerolog.Nop(),
		APIBase:      r.srv.URL,
		UploadURL:    r.srv.URL + "/uploadfile",
		BypassBase:   r.srv.URL,
		WTBundleURLs: []string{r.srv.URL + "/dist/js/global.js"},
		Retry: &utils.RetryConfig{
			MaxAttempts:  2,
			InitialDelay: time.Millisecond,
			MaxDelay:     2 * time.Millisecond,
			Multiplier:   2,
		},
	})
	cache := dircache.New("rootcode")
	return NewFileSystem(client, cache, readOnly, zerolog.Nop())
}
