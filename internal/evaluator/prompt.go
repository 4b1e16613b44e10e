package evaluator

// systemPrompt is shared by every evaluation kind. The reply schema is fixed;
// the per-kind user message only supplies the material to grade.
const systemPrompt = `You are an English teacher grading a language learner.

Be fair and encouraging, but do not inflate scores. Judge meaning first, then form.

Respond with ONLY a JSON object in this exact format (no markdown, no prose):
{
  "score": <integer 0-100>,
  "fluency": <integer 0-100>,
  "pronunciation": <integer 0-100>,
  "vocabulary": <integer 0-100>,
  "grammar": <integer 0-100>,
  "general": "correct" | "incorrect",
  "feedback": "<one or two short sentences for the learner>",
  "suggestion": "<one concrete tip, or empty>"
}

If the input cannot be graded at all, respond with {"error": "<reason>"} instead.`

const wordPrompt = `Pronunciation exercise for a single word.

Target word: %q
What the speech recognizer heard: %q

Score how well the learner pronounced the target word. A recognizer transcript
that differs from the target usually means a pronunciation problem.`

const answerPrompt = `Listening comprehension exercise.

Expected answer points: %s
Learner answer: %q

Score how well the learner answer covers the expected points. Wording may differ;
meaning matters.`

const sentencePrompt = `Written answer exercise.

Question: %q
Keywords a good answer mentions: %s
Learner answer: %q

Score the answer for relevance to the question, coverage of the keywords, grammar
and vocabulary.`

const speakingPrompt = `Speaking exercise. The learner answer was transcribed from speech.

Question: %s
Transcript: %q

Score fluency, pronunciation (as far as the transcript shows), vocabulary and
grammar, and give an overall score.`
