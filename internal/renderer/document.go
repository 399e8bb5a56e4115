package renderer

import (
	"fmt"
	"os"

	"reportr-backend/internal/models"
)

const defaultCompanyName = "SBStruc Engineering"

// Run is a piece of paragraph text in one weight.
type Run struct {
	Text string
	Bold bool
}

type Paragraph []Run

type FigureImage struct {
	Path      string
	Landscape bool
}

// Figure is a captioned group of photographs. Large figures show one image per row.
type Figure struct {
	Caption string
	Images  []FigureImage
	Large   bool
}

// Block is either a paragraph or a figure.
type Block struct {
	Paragraph Paragraph
	Figure    *Figure
}

// Section is a chapter heading or a numbered subsection with its content.
type Section struct {
	Heading string
	Chapter bool
	Blocks  []Block
}

// Document is the renderer-independent content of an activity report.
type Document struct {
	CompanyName      string
	BuildingName     string
	BuildingLocation string
	TestingMonth     string
	CoverImage       *FigureImage
	Sections         []Section
	PreparedBy       string
	PreparedByRole   string
}

func text(s string) Run { return Run{Text: s} }

func bold(s string) Run { return Run{Text: s, Bold: true} }

func para(runs ...Run) Block { return Block{Paragraph: Paragraph(runs)} }

// BuildDocument lays out the report for a session. Images whose bytes are missing are
// left out of their figure. It fails with ErrNotReady when the session has no form
// fields.
func BuildDocument(session *models.Session, images ImageLocator) (*Document, error) {
	if session.FormFields == nil {
		return nil, fmt.Errorf("session has no form fields to render: %w", ErrNotReady)
	}
	form := session.FormFields
	b := form.BuildingDetails
	sup := form.Superstructure
	sub := form.Substructure.ConcreteCoreExtraction

	figure := func(caption string, group models.PhotoGroup) Block {
		return Block{Figure: &Figure{Caption: caption, Images: collectImages(session, group, images)}}
	}

	buildingPhotos := collectImages(session, models.PhotoGroupBuildingPhoto, images)
	doc := &Document{
		CompanyName:      defaultCompanyName,
		BuildingName:     b.BuildingName,
		BuildingLocation: b.BuildingLocation,
		TestingMonth:     formatTestingMonth(b.TestingDate),
		PreparedBy:       form.Signature.PreparedBy,
		PreparedByRole:   form.Signature.PreparedByRole,
	}
	if len(buildingPhotos) > 0 {
		cover := buildingPhotos[0]
		doc.CoverImage = &cover
	}

	doc.Sections = []Section{
		{
			Heading: "A. INTRODUCTION",
			Chapter: true,
			Blocks: []Block{
				para(
					text(defaultCompanyName+" conducted destructive testing, non-destructive testing, and foundation excavation on the existing "),
					bold(fmt.Sprintf("%s-storey building, %s", numberToWords(b.NumberOfStorey), b.BuildingName)),
					text(", located in "),
					bold(b.BuildingLocation),
					text("."),
				),
				{Figure: &Figure{Caption: b.BuildingName, Images: buildingPhotos, Large: true}},
				para(text("This work was undertaken solely to gather data and information on the existing building. " +
					"Concrete core extraction and rebar extraction were performed to obtain samples for the determination " +
					"of concrete and reinforcing steel properties, respectively. Non-destructive testing, including rebar " +
					"scanning and rebound hammer testing, was also carried out to collect additional data on concrete " +
					"characteristics, identify rebar sizes, and document the probable quantity and layout of reinforcement " +
					"within the building's structural components. Chipping of selected portions of the existing slab was " +
					"conducted to verify the existing reinforcement. Excavation works were conducted to gather data on the " +
					"existing foundation.")),
			},
		},
		{Heading: "B. DATA GATHERING FOR SUPERSTRUCTURE", Chapter: true},
		{
			Heading: "B.1. Rebar Scanning",
			Blocks: []Block{
				para(
					text("Rebar scanning was performed using non-destructive testing methods to determine the quantity, "+
						"spacing, and approximate diameter of reinforcing steel bars embedded within the concrete elements. "+
						"This activity was carried out to verify reinforcement detailing and support the structural assessment "+
						"without causing damage to the members. A total of "),
					bold(wordsWithDigits(sup.RebarScanning.NumberOfRebarScanLocations)+" rebar scan locations"),
					text(" were evaluated, and initial rebar data were recorded on site during the scanning process. "+
						"The compiled results for the selected structural members are presented in "),
					bold("Annex I"),
					text("."),
				),
				figure("Figure B.1. REBAR SCANNING", models.PhotoGroupRebarScanning),
			},
		},
		{
			Heading: "B.2. Rebound Hammer Test",
			Blocks: []Block{
				para(
					text("Non-destructive testing using the Rebound Hammer Test was conducted on selected structural members "+
						"to assess the uniformity and relative quality of the in-situ concrete strength, as indicated by the "+
						"measured Q-values. A total of "),
					bold(wordsWithDigits(sup.ReboundHammerTest.NumberOfReboundHammerTestLocations)+" test locations"),
					text(" were evaluated and distributed across the structure. At each test location, ten (10) rebound "+
						"hammer impacts were applied in accordance with standard testing procedures consistent with ASTM C805. "+
						"The rebound numbers obtained were statistically analyzed, with mean values calculated for each "+
						"structural member. A summary of the rebound number test results is presented in "),
					bold("Annex II"),
					text("."),
				),
				figure("Figure B.2. REBOUND HAMMER TESTS", models.PhotoGroupReboundHammerTest),
			},
		},
		{
			Heading: "B.3. Concrete Core Extraction",
			Blocks: []Block{
				para(
					text("Concrete core extraction was conducted on selected structural members to obtain representative "+
						"samples of the building's in-situ concrete. A total of "),
					bold(wordsWithDigits(sup.ConcreteCoreExtraction.NumberOfCoringLocations)+" cores"),
					text(" were extracted. The specimens were used to assess concrete quality, including compressive "+
						"strength and overall material condition. Compressive strength testing was performed in accordance "+
						"with ASTM C42/C42M, and the corresponding results are presented in "),
					bold("Annex III"),
					text("."),
				),
				figure("Figure B.3.1 Concrete Core Extraction", models.PhotoGroupConcreteCoring),
				figure("Figure B.3.2 Extracted Core Samples", models.PhotoGroupCoreSamplesFamilyPic),
			},
		},
		{
			Heading: "B.4. Rebar Extraction",
			Blocks: []Block{
				para(
					text("Rebar extraction was carried out on selected structural members to obtain representative "+
						"reinforcement samples from the building's structural system. A total of "),
					bold(wordsWithDigits(sup.RebarExtraction.NumberOfRebarSamplesExtracted)+" rebar samples"),
					text(" were extracted."),
				),
				figure("Figure B.4.1 Rebar Extraction", models.PhotoGroupRebarExtraction),
				figure("Figure B.4.2 Extracted Rebar Samples", models.PhotoGroupRebarSamplesFamilyPic),
				para(
					text("The extracted rebars were evaluated to determine their material properties, including tensile "+
						"strength. The tensile test results are presented in "),
					bold("Annex IV"),
					text("."),
				),
			},
		},
		{
			Heading: "B.5. Chipping of Existing Slab",
			Blocks: []Block{
				para(text("Chipping of the existing slab at one selected location was conducted to verify the reinforcement size.")),
				figure("Figure B.5. Chipping of Existing Slab", models.PhotoGroupChippingOfSlab),
			},
		},
		{
			Heading: "B.6. Restoration Works",
			Blocks: []Block{
				para(
					text("Following the completion of concrete coring, rebar extraction, and chipping of slab, reinstatement "+
						"works were carried out to restore the affected structural elements and ensure continuity of "+
						"structural performance. Structural components from which samples were extracted were restored to "+
						"their original condition. Removed reinforcement was replaced with new rebars of equivalent diameter "+
						"and grade to maintain structural capacity. Concrete that was chipped or removed during the "+
						"verification and extraction process was reinstated using "),
					bold(sup.RestorationWorks.NonShrinkGroutProductUsed),
					text(" non-shrink grout, with proper bonding between existing and new concrete ensured through the "+
						"application of "),
					bold(sup.RestorationWorks.EpoxyABUsed),
					text(" structural adhesive."),
				),
				figure("Figure B.6. Restoration Works", models.PhotoGroupRestoration),
			},
		},
		{Heading: "C. DATA GATHERING FOR SUBSTRUCTURE", Chapter: true},
		{
			Heading: "C.1. Concrete Core Extraction",
			Blocks: []Block{
				para(
					text("Concrete core extraction was conducted at "),
					bold(wordsWithDigits(sub.NumberOfFoundationLocations)+" selected foundation locations"),
					text(" to obtain representative samples of the building's in-situ concrete. A total of "),
					bold(wordsWithDigits(sub.NumberOfFoundationCoresExtracted)+" cores"),
					text(" were extracted. The specimens were used to determine concrete properties, including "+
						"compressive strength. Compressive strength testing was performed in accordance with ASTM C42/C42M, "+
						"and the results are presented in "),
					bold("Annex V"),
					text("."),
				),
				figure("Figure C.1. Concrete Core Extraction for Foundation", models.PhotoGroupFoundationCoring),
			},
		},
		{
			Heading: "C.2. Rebar Scanning",
			Blocks: []Block{
				para(
					text("Rebar scanning was performed using non-destructive testing methods to determine the quantity, "+
						"spacing, and approximate diameter of reinforcing steel bars embedded within the concrete foundation. "+
						"The initial rebar data were recorded on site during the scanning process. The compiled results for "+
						"the foundation are presented in "),
					bold("Annex VI"),
					text("."),
				),
				figure("Figure C.2. Rebar Scanning for Foundation", models.PhotoGroupFoundationRebarScanning),
			},
		},
		{
			Heading: "C.3. Restoration for Coring Works, Backfilling, and Compaction",
			Blocks: []Block{
				para(text("Following the concrete core extraction, the excavated foundation areas were backfilled using the " +
					"previously removed soils and compacted to restore the foundation to its original profile.")),
				figure("Figure C.3. Restoration for Coring Works, Backfilling, and Compaction", models.PhotoGroupFoundationRestorationBackfilling),
			},
		},
	}
	return doc, nil
}

func collectImages(session *models.Session, group models.PhotoGroup, images ImageLocator) []FigureImage {
	var out []FigureImage
	for _, meta := range session.Images[group] {
		path := images.ImagePath(session.ID, meta)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		out = append(out, FigureImage{Path: path, Landscape: meta.IsLandscape()})
	}
	return out
}

// Images returns every distinct image path the document references, cover first.
func (d *Document) Images() []FigureImage {
	seen := make(map[string]bool)
	var out []FigureImage
	add := func(img FigureImage) {
		if !seen[img.Path] {
			seen[img.Path] = true
			out = append(out, img)
		}
	}
	if d.CoverImage != nil {
		add(*d.CoverImage)
	}
	for _, section := range d.Sections {
		for _, block := range section.Blocks {
			if block.Figure == nil {
				continue
			}
			for _, img := range block.Figure.Images {
				add(img)
			}
		}
	}
	return out
}

// Rows splits the figure into rows of at most two images, landscape images first.
// Large figures get one image per row.
func (f *Figure) Rows() [][]FigureImage {
	if f.Large {
		rows := make([][]FigureImage, 0, len(f.Images))
		for _, img := range f.Images {
			rows = append(rows, []FigureImage{img})
		}
		return rows
	}
	var landscape, portrait []FigureImage
	for _, img := range f.Images {
		if img.Landscape {
			landscape = append(landscape, img)
		} else {
			portrait = append(portrait, img)
		}
	}
	var rows [][]FigureImage
	for _, set := range [][]FigureImage{landscape, portrait} {
		for len(set) > 0 {
			n := min(2, len(set))
			rows = append(rows, set[:n])
			set = set[n:]
		}
	}
	return rows
}
