package model

// Dataset is one catalog row describing a remote product to fetch.
type Dataset struct {
	GUID  string `gorm:"column:guid;primaryKey;type:varchar(64)" json:"guid"`
	Title string `gorm:"column:title;type:varchar(255);not null" json:"title"`
}

// TableName returns the database table name.
func (Dataset) TableName() string {
	return "datasets"
}
