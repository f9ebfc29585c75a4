package subject

import (
	"fmt"
	"strings"
)

// BuildPrompt assembles the user-turn text for the extraction call. The
// constraints keep the generated model in papercraft register: the viewer
// renders these on a tree, so chunky silhouettes and flat colors matter
// more than fidelity.
func BuildPrompt(story string, hasImage bool) string {
	var b strings.Builder
	if hasImage {
		b.WriteString("I will give you a text and an image.\n")
		b.WriteString("From BOTH of them, infer ONE most meaningful object and write a lowpoly 3D prompt.\n\n")
	} else {
		b.WriteString("I will give you a text.\n")
		b.WriteString("From it, infer ONE most meaningful object and write a lowpoly 3D prompt.\n\n")
	}
	fmt.Fprintf(&b, "TEXT:\n%s\n\n", story)
	b.WriteString("Respond ONLY in raw JSON with: object, lowpolyPrompt.\n")
	b.WriteString("Lowpoly prompt must include: fewer than 100 quadrilaterals, origami-ready, paper toy, " +
		"cardboard cutout, simple flat colors accurate to the real object's typical color palette. " +
		"It must eliminate all fine geometric details (such as toppings, fur strands, thin limbs, ridges, " +
		"bumps, decorations, or surface noise). Preserve only the large essential shapes of the object. " +
		"The silhouette must be chunky, blocky, and extremely simplified. " +
		"Use clean flat color regions representing the object's typical palette, with no gradients, " +
		"no spots, and no micro details.")
	return b.String()
}
