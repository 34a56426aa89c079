package projectxml

import "strings"

// document mirrors the parts of a yWriter7 project file that are imported.
type document struct {
	Project    projectInfo `xml:"PROJECT"`
	Locations  []entity    `xml:"LOCATIONS>LOCATION"`
	Items      []entity    `xml:"ITEMS>ITEM"`
	Characters []entity    `xml:"CHARACTERS>CHARACTER"`
	Scenes     []scene     `xml:"SCENES>SCENE"`
	Chapters   []chapter   `xml:"CHAPTERS>CHAPTER"`
}

type projectInfo struct {
	Ver   string `xml:"Ver"`
	Title string `xml:"Title"`
	Desc  string `xml:"Desc"`
}

type entity struct {
	ID       string `xml:"ID"`
	Title    string `xml:"Title"`
	Desc     string `xml:"Desc"`
	AKA      string `xml:"AKA"`
	Tags     string `xml:"Tags"`
	Notes    string `xml:"Notes"`
	FullName string `xml:"FullName"`
	Bio      string `xml:"Bio"`
	Goals    string `xml:"Goals"`
}

type scene struct {
	ID            string   `xml:"ID"`
	Title         string   `xml:"Title"`
	Desc          string   `xml:"Desc"`
	Unused        string   `xml:"Unused"`
	Status        string   `xml:"Status"`
	SceneType     string   `xml:"SceneType"`
	ReactionScene string   `xml:"ReactionScene"`
	Goal          string   `xml:"Goal"`
	Conflict      string   `xml:"Conflict"`
	Outcome       string   `xml:"Outcome"`
	Content       string   `xml:"SceneContent"`
	CharIDs       []string `xml:"Characters>CharID"`
	LocIDs        []string `xml:"Locations>LocID"`
	ItemIDs       []string `xml:"Items>ItemID"`
}

type chapter struct {
	ID           string   `xml:"ID"`
	Title        string   `xml:"Title"`
	Type         string   `xml:"Type"`
	ChapterType  string   `xml:"ChapterType"`
	Unused       string   `xml:"Unused"`
	SectionStart string   `xml:"SectionStart"`
	SceneIDs     []string `xml:"Scenes>ScID"`
}

// flag reads a yWriter boolean. Set flags are written as -1 or 1.
func flag(s string) bool {
	s = strings.TrimSpace(s)
	return s != "" && s != "0"
}

// zero reports whether a numeric field is absent or 0.
func zero(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || s == "0"
}

var statusNames = map[string]string{
	"1": "Outline",
	"2": "Draft",
	"3": "1st Edit",
	"4": "2nd Edit",
	"5": "Done",
}
