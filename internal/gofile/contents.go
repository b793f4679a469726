package gofile

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// GetContents fetches the entry with the given id. Folders come back with
// one level of children, keyed by child id. When the bypass proxy is
// enabled the returned entry has its download links rewritten where the
// proxy can serve them.
func (c *Client) GetContents(ctx context.Context, id ContentID) (Entry, error) {
	entry, err := c.getContents(ctx, id)
	if err != nil || !c.useBypass {
		return entry, err
	}
	return c.applyBypass(ctx, entry)
}

// getContents is GetContents without the bypass rewrite.
func (c *Client) getContents(ctx context.Context, id ContentID) (Entry, error) {
	wt, err := c.websiteToken(ctx)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("page", "1")
	query.Set("pageSize", defaultPageSize)
	query.Set("wt", wt)
	if c.passwordHash != "" {
		query.Set("password", c.passwordHash)
	}

	data, err := c.doJSON(ctx, http.MethodGet, c.apiBase+"/contents/"+id.String()+"?"+query.Encode(), nil, true)
	if err != nil {
		return nil, err
	}

	reply, err := decodeContentsReply(data)
	if err != nil {
		return nil, err
	}
	if reply.restricted != nil {
		return nil, reply.restricted.Err()
	}

	folder, ok := reply.entry.(*FolderEntry)
	if !ok {
		return reply.entry, nil
	}
	if err := c.resolveChildren(ctx, folder, reply.rawChildren); err != nil {
		return nil, err
	}
	return folder, nil
}

// resolveChildren converts the raw child payloads of a folder reply into
// entries. Child folders are kept shallow (their own children are dropped;
// listing descends one level per call). A restricted child folder means the
// public listing hid a password-protected subfolder: it is fetched again
// individually so the configured password applies to it. A restricted child
// file should not exist below a readable folder, so it is logged and
// skipped rather than treated as fatal.
func (c *Client) resolveChildren(ctx context.Context, folder *FolderEntry, raw map[string]json.RawMessage) error {
	for childID, rawChild := range raw {
		reply, err := decodeContentsReply(rawChild)
		if err != nil {
			return fmt.Errorf("decoding child %s of folder %s: %w", childID, folder.ID, err)
		}

		switch {
		case reply.restricted == nil:
			// Accessible child; folder children stay shallow.
			folder.Children[childID] = reply.entry

		case reply.restricted.Folder:
			refetched, err := c.getContents(ctx, FromUUID(reply.restricted.ID))
			if err != nil {
				return err
			}
			if child, ok := refetched.(*FolderEntry); ok {
				child.Children = make(map[string]Entry)
				folder.Children[childID] = child
			} else {
				folder.Children[childID] = refetched
			}

		default:
			c.logger.Warn().
				Str("folder", folder.ID.String()).
				Str("child", childID).
				Msg("restricted file inside readable folder, skipping")
		}
	}
	return nil
}

// applyBypass decorates entry with proxy download links per the bypass
// service. For a single file the parent folder is resolved under the same
// rules so the file lookup still sees the rewritten link. Folders that are
// private, password protected or hold no files are left alone.
func (c *Client) applyBypass(ctx context.Context, entry Entry) (Entry, error) {
	switch e := entry.(type) {
	case *FileEntry:
		parent, err := c.GetContents(ctx, ParseContentID(e.ParentFolder))
		if err != nil {
			return nil, err
		}
		folder, ok := parent.(*FolderEntry)
		if !ok {
			return nil, fmt.Errorf("gofile: expected folder %s but got a file", e.ParentFolder)
		}
		sibling, ok := folder.Children[e.ID.String()]
		if !ok {
			return nil, fmt.Errorf("gofile: file %s missing from parent folder %s", e.ID, folder.ID)
		}
		return sibling, nil

	case *FolderEntry:
		if !e.Public {
			c.logger.Warn().Str("folder", e.ID.String()).Msg("bypass unavailable for private folder")
			return e, nil
		}
		if e.Password {
			return e, nil
		}
		var hasFiles bool
		for _, child := range e.Children {
			if !child.IsDir() {
				hasFiles = true
				break
			}
		}
		if !hasFiles {
			return e, nil
		}

		bypassFiles, err := c.BypassFiles(ctx, e.Code)
		if err != nil {
			return nil, err
		}
		for _, bf := range bypassFiles {
			for _, child := range e.Children {
				file, ok := child.(*FileEntry)
				if !ok {
					continue
				}
				if strings.Contains(bf.Link, file.ID.String()) {
					file.Link = bf.ProxyLink
					file.Bypassed = true
				}
			}
		}
		return e, nil

	default:
		return entry, nil
	}
}
