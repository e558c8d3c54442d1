package llm

import "fmt"

const systemPrompt = "You are an expert in Manim animation programming."

const scriptPromptTemplate = `Write a detailed scene description for a Manim animation based on the request below.

The description must cover:
- the visual elements (Mobjects) on screen and how they are positioned
- movements and transitions, in the order they happen
- timing for each beat of the animation
- colors and styling, using Manim color constants or hex codes

### Request:
%q

Respond with the structured scene description only.`

const codePromptTemplate = `Generate complete and valid Manim Python code for the animation described below.
The animation should run for approximately %d seconds.

### Request:
%q

### Scene description:
%s

### Requirements for the output:
1. **Code Only**: Return ONLY the Python code. No explanations or conversational text.
2. **Imports**: Start with 'from manim import *' plus any other import the code needs.
3. **Single Scene**: All animation logic lives in one class inheriting from 'Scene' or 'ThreeDScene', with a 'construct' method.
4. **Timing**: Use run_time and self.wait() so the total length matches the requested duration.
5. **Progression**: Every animation sequence needs at least one 'self.play()' followed by a 'self.wait()'.
6. **Fallback**: If the request is nonsensical or beyond Manim's capabilities, output a simple default animation (a fading square or circle) instead.`

func scriptPrompt(prompt string) string {
	return fmt.Sprintf(scriptPromptTemplate, prompt)
}

func codePrompt(prompt, script string, duration int) string {
	return fmt.Sprintf(codePromptTemplate, duration, prompt, script)
}
