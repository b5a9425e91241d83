// Copyright 2015 Google Inc. All Rights Reserved.

package fsim

import "strings"

// splitPath tokenizes a slash-separated path into its non-empty
// components. Trailing (and leading, and repeated) slashes are ignored, so
// "/a/b/", "/a/b" and "a/b" all yield ["a", "b"].
func splitPath(path string) []string {
	parts := strings.Split(path, "/")
	tokens := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			tokens = append(tokens, p)
		}
	}
	return tokens
}

// splitParentName splits a path into its parent directory path and the
// final component's name.
func splitParentName(path string) (parentPath, name string) {
	tokens := splitPath(path)
	if len(tokens) == 0 {
		return "/", ""
	}
	name = tokens[len(tokens)-1]
	if len(tokens) == 1 {
		return "/", name
	}
	return "/" + strings.Join(tokens[:len(tokens)-1], "/"), name
}

// resolve walks path from the root inode, one directory lookup per
// component, returning the inode number of the final component.
func (fs *FS) resolve(path string) (int, error) {
	if path == "/" || path == "" {
		return RootInode, nil
	}

	tokens := splitPath(path)
	cur := RootInode
	for _, tok := range tokens {
		child, ok, err := fs.lookupChild(cur, tok)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, newErr(KindNotFound, "resolve", path, nil)
		}
		cur = child
	}
	return cur, nil
}

// resolveParent is like resolve, but stops one token early: it resolves
// the directory that would contain path's final component. A single
// component path resolves to the root.
func (fs *FS) resolveParent(path string) (int, error) {
	parentPath, _ := splitParentName(path)
	return fs.resolve(parentPath)
}
