package database

import "time"

type DBUser struct {
	ID       string
	Password string
}

type DBFile struct {
	Id         int64
	Name       string
	FileName   string
	MimeType   string
	Size       int64
	UploadDate time.Time
}
