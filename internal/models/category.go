package models

import "time"

type Category struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	ImagePath  string    `json:"image_path"`
	FolderName string    `json:"folder_name"`
	CreatedAt  time.Time `json:"created_at"`
}
