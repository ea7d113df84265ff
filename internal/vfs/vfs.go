// Package vfs provides the filesystem abstraction every on-disk component
// goes through: column files, tombstone files, and the summary log. The
// only implementation is the OS filesystem (Default), which tests also use
// against temporary directories.
package vfs

import (
	"io"
	"os"
)

// FS is the filesystem every durable component is written against.
type FS interface {
	Create(name string) (WritableFile, error)
	// OpenAppend opens an existing file for appending, creating it if it
	// does not already exist. Used by append-only logs (tombstone files,
	// the summary log) so a process restart continues a file rather than
	// truncating it.
	OpenAppend(name string) (WritableFile, error)
	Open(name string) (SequentialFile, error)
	OpenRandomAccess(name string) (RandomAccessFile, error)
	Rename(oldname, newname string) error
	Remove(name string) error
	RemoveAll(path string) error
	MkdirAll(path string, perm os.FileMode) error
	Stat(name string) (os.FileInfo, error)
	Exists(name string) bool
	ListDir(path string) ([]string, error)
	// Lock acquires an exclusive lock on name, used to serialize tombstone
	// writers for a single column file. The returned Closer releases it.
	Lock(name string) (io.Closer, error)
	SyncDir(path string) error
}

// WritableFile is an open file being written to, e.g. a TSM file during
// flush or a summary log segment.
type WritableFile interface {
	io.Writer
	io.Closer
	Sync() error
	Append(data []byte) error
	Truncate(size int64) error
	Size() (int64, error)
}

// SequentialFile supports a forward-only read pass, used to replay the
// summary log and read tombstone files.
type SequentialFile interface {
	io.Reader
	io.Closer
	Skip(n int64) error
}

// RandomAccessFile supports offset reads, used to fetch TSM blocks named by
// a file's index.
type RandomAccessFile interface {
	io.ReaderAt
	io.Closer
	Size() int64
}

// osFS implements FS over the real operating system filesystem.
type osFS struct{}

// Default returns the OS filesystem.
func Default() FS { return osFS{} }

func (osFS) Create(name string) (WritableFile, error) {
	f, err := os.Create(name)
	if err != nil {
		return nil, err
	}
	return &osWritableFile{f: f}, nil
}

func (osFS) OpenAppend(name string) (WritableFile, error) {
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	return &osWritableFile{f: f}, nil
}

func (osFS) Open(name string) (SequentialFile, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	return &osSequentialFile{f: f}, nil
}

func (osFS) OpenRandomAccess(name string) (RandomAccessFile, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &osRandomAccessFile{f: f, size: info.Size()}, nil
}

func (osFS) Rename(oldname, newname string) error { return os.Rename(oldname, newname) }
func (osFS) Remove(name string) error              { return os.Remove(name) }
func (osFS) RemoveAll(path string) error            { return os.RemoveAll(path) }
func (osFS) MkdirAll(path string, perm os.FileMode) error { return os.MkdirAll(path, perm) }
func (osFS) Stat(name string) (os.FileInfo, error)  { return os.Stat(name) }

func (osFS) Exists(name string) bool {
	_, err := os.Stat(name)
	return err == nil
}

func (osFS) ListDir(path string) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	return names, nil
}

func (osFS) Lock(name string) (io.Closer, error) {
	return lockFile(name)
}

func (osFS) SyncDir(path string) error {
	dir, err := os.Open(path)
	if err != nil {
		return err
	}
	syncErr := dir.Sync()
	closeErr := dir.Close()
	if syncErr != nil {
		return syncErr
	}
	return closeErr
}

type osWritableFile struct{ f *os.File }

func (wf *osWritableFile) Write(p []byte) (int, error) { return wf.f.Write(p) }
func (wf *osWritableFile) Close() error                { return wf.f.Close() }
func (wf *osWritableFile) Sync() error                 { return wf.f.Sync() }
func (wf *osWritableFile) Append(data []byte) error {
	_, err := wf.f.Write(data)
	return err
}
func (wf *osWritableFile) Truncate(size int64) error { return wf.f.Truncate(size) }
func (wf *osWritableFile) Size() (int64, error) {
	info, err := wf.f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

type osSequentialFile struct{ f *os.File }

func (sf *osSequentialFile) Read(p []byte) (int, error) { return sf.f.Read(p) }
func (sf *osSequentialFile) Close() error                { return sf.f.Close() }
func (sf *osSequentialFile) Skip(n int64) error {
	_, err := sf.f.Seek(n, io.SeekCurrent)
	return err
}

type osRandomAccessFile struct {
	f    *os.File
	size int64
}

func (rf *osRandomAccessFile) ReadAt(p []byte, off int64) (int, error) { return rf.f.ReadAt(p, off) }
func (rf *osRandomAccessFile) Close() error                             { return rf.f.Close() }
func (rf *osRandomAccessFile) Size() int64                              { return rf.size }
