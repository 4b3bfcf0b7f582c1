package spec

import "testing"

func TestLoadDefaultSpec(t *testing.T) {
	spec, err := LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault() err=%v", err)
	}
	if spec.App.Name != "kiauto" {
		t.Fatalf("app name = %q", spec.App.Name)
	}
	if len(spec.Commands) == 0 {
		t.Fatalf("expected commands")
	}
}

func TestValidateRejectsEmpty(t *testing.T) {
	if err := Validate([]byte("")); err == nil {
		t.Fatalf("expected error for empty spec")
	}
	if _, err := Parse([]byte("  \n")); err == nil {
		t.Fatalf("expected error for blank spec")
	}
}

func TestValidateRejectsMissingName(t *testing.T) {
	yaml := []byte("version: 1\napp: {}\ncommands: []\n")
	if _, err := Parse(yaml); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidateRejectsUnknownFlagType(t *testing.T) {
	yaml := []byte(`version: 1
app: {name: x, summary: y}
commands:
  - name: a
    id: a
    summary: b
    flags:
      - {name: speed, type: complex}
`)
	if _, err := Parse(yaml); err == nil {
		t.Fatalf("expected validation error for flag type")
	}
}

func TestAllCommandsAndFindByID(t *testing.T) {
	specDoc, err := LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault: %v", err)
	}
	for _, id := range []string{
		"eeschema.export", "eeschema.run_erc", "eeschema.netlist", "eeschema.bom_xml",
		"pcbnew.run_drc", "pcbnew.export", "version",
	} {
		if specDoc.FindByID(id) == nil {
			t.Fatalf("expected %s command", id)
		}
	}
	if specDoc.FindByID("pcbnew.unknown") != nil {
		t.Fatalf("unexpected command")
	}
}

func TestSharedArgsResolve(t *testing.T) {
	specDoc, err := LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault: %v", err)
	}
	erc := specDoc.FindByID("eeschema.run_erc")
	if len(erc.Args) != 2 || erc.Args[0].Name != "schematic" || !erc.Args[1].Required {
		t.Fatalf("run_erc args = %+v", erc.Args)
	}
	export := specDoc.FindByID("pcbnew.export")
	if len(export.Args) != 3 || !export.Args[2].Variadic {
		t.Fatalf("pcbnew export args = %+v", export.Args)
	}
}

func TestFind(t *testing.T) {
	specDoc, err := LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault: %v", err)
	}
	cmd := specDoc.Find("PCBNEW")
	if cmd == nil || !cmd.LeadingArgs {
		t.Fatalf("Find(PCBNEW) = %+v", cmd)
	}
	if specDoc.Find("export") != nil {
		t.Fatalf("Find must only match top-level commands")
	}
	var nilSpec *Spec
	if nilSpec.Find("pcbnew") != nil {
		t.Fatalf("nil spec should find nothing")
	}
}

func TestParseChecksTree(t *testing.T) {
	cases := map[string]string{
		"wrong id": `version: 1
app: {name: x, summary: y}
commands:
  - name: pcbnew
    id: pcbnew
    summary: p
    subcommands:
      - {name: run_drc, id: drc, summary: d}
`,
		"duplicate id": `version: 1
app: {name: x, summary: y}
commands:
  - {name: a, id: a, summary: s}
  - {name: a, id: a, summary: s}
`,
		"variadic not last": `version: 1
app: {name: x, summary: y}
commands:
  - name: a
    id: a
    summary: s
    args:
      - {name: layers, variadic: true}
      - {name: board}
`,
		"leading args on a leaf": `version: 1
app: {name: x, summary: y}
commands:
  - {name: a, id: a, summary: s, leading_args: true}
`,
	}
	for name, doc := range cases {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Errorf("%s: Parse accepted", name)
		}
	}
}
