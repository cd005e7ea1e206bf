package internal

import (
	"time"

	"drivebox.dev/api/internal/database"
)

// RESTful datatypes

type CredentialsReq struct {
	ID       string `json:"id"`
	Password string `json:"password"`
}
type RefreshTokenReq struct {
	RefreshToken string `json:"refreshToken"`
}
type TokenPairRes struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}
type AccessTokenRes struct {
	AccessToken string `json:"accessToken"`
}
type InfoRes struct {
	ID string `json:"id"`
}
type FileIDRes struct {
	ID int64 `json:"id"`
}
type ListFilesRes struct {
	Files []File `json:"files"`
}
type GetFileRes struct {
	File File `json:"file"`
}
type HealthRes struct {
	Status string `json:"status"`
}

// Substructures

type File struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	FileName   string    `json:"filename"`
	MimeType   string    `json:"mimetype"`
	Size       int64     `json:"size"`
	UploadDate time.Time `json:"upload_date"`
}

func newFile(f database.DBFile) File {
	return File{
		ID:         f.Id,
		Name:       f.Name,
		FileName:   f.FileName,
		MimeType:   f.MimeType,
		Size:       f.Size,
		UploadDate: f.UploadDate,
	}
}
