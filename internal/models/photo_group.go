package models

// PhotoGroup names a bucket of photographs collected for one report section.
type PhotoGroup string

const (
	PhotoGroupBuildingPhoto                    PhotoGroup = "building_details_building_photo"
	PhotoGroupRebarScanning                    PhotoGroup = "superstructure_rebar_scanning_photos"
	PhotoGroupReboundHammerTest                PhotoGroup = "superstructure_rebound_hammer_test_photos"
	PhotoGroupConcreteCoring                   PhotoGroup = "superstructure_concrete_coring_photos"
	PhotoGroupCoreSamplesFamilyPic             PhotoGroup = "superstructure_core_samples_family_pic"
	PhotoGroupRebarExtraction                  PhotoGroup = "superstructure_rebar_extraction_photos"
	PhotoGroupRebarSamplesFamilyPic            PhotoGroup = "superstructure_rebar_samples_family_pic"
	PhotoGroupChippingOfSlab                   PhotoGroup = "superstructure_chipping_of_slab_photos"
	PhotoGroupRestoration                      PhotoGroup = "superstructure_restoration_photos"
	PhotoGroupFoundationCoring                 PhotoGroup = "substructure_coring_for_foundation_photos"
	PhotoGroupFoundationRebarScanning          PhotoGroup = "substructure_rebar_scanning_for_foundation_photos"
	PhotoGroupFoundationRestorationBackfilling PhotoGroup = "substructure_restoration_backfilling_compaction_photos"
)

// GroupLimits is the cardinality range a photo group must satisfy.
type GroupLimits struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// photoGroupOrder fixes iteration order; it is also the order groups appear in the report.
var photoGroupOrder = []PhotoGroup{
	PhotoGroupBuildingPhoto,
	PhotoGroupRebarScanning,
	PhotoGroupReboundHammerTest,
	PhotoGroupConcreteCoring,
	PhotoGroupCoreSamplesFamilyPic,
	PhotoGroupRebarExtraction,
	PhotoGroupRebarSamplesFamilyPic,
	PhotoGroupChippingOfSlab,
	PhotoGroupRestoration,
	PhotoGroupFoundationCoring,
	PhotoGroupFoundationRebarScanning,
	PhotoGroupFoundationRestorationBackfilling,
}

var photoGroupLimits = map[PhotoGroup]GroupLimits{
	PhotoGroupBuildingPhoto:                    {Min: 1, Max: 1},
	PhotoGroupRebarScanning:                    {Min: 1, Max: 5},
	PhotoGroupReboundHammerTest:                {Min: 1, Max: 5},
	PhotoGroupConcreteCoring:                   {Min: 1, Max: 5},
	PhotoGroupCoreSamplesFamilyPic:             {Min: 1, Max: 2},
	PhotoGroupRebarExtraction:                  {Min: 1, Max: 5},
	PhotoGroupRebarSamplesFamilyPic:            {Min: 1, Max: 2},
	PhotoGroupChippingOfSlab:                   {Min: 1, Max: 2},
	PhotoGroupRestoration:                      {Min: 1, Max: 5},
	PhotoGroupFoundationCoring:                 {Min: 1, Max: 3},
	PhotoGroupFoundationRebarScanning:          {Min: 1, Max: 3},
	PhotoGroupFoundationRestorationBackfilling: {Min: 1, Max: 5},
}

// PhotoGroups returns every known group in report order.
func PhotoGroups() []PhotoGroup {
	out := make([]PhotoGroup, len(photoGroupOrder))
	copy(out, photoGroupOrder)
	return out
}

// ParsePhotoGroup resolves a path segment to a known group.
func ParsePhotoGroup(name string) (PhotoGroup, bool) {
	group := PhotoGroup(name)
	_, ok := photoGroupLimits[group]
	return group, ok
}

// Limits returns the static cardinality range of the group.
func (g PhotoGroup) Limits() GroupLimits {
	return photoGroupLimits[g]
}

func (g PhotoGroup) Valid() bool {
	_, ok := photoGroupLimits[g]
	return ok
}

func (g PhotoGroup) String() string {
	return string(g)
}
