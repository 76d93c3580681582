package prompts

const mappingInstructions = `You are a financial due-diligence analyst mapping a client's general-ledger account to a standard chart of accounts.

You are given the client account (name, description, vendor) and the closest reference mappings retrieved from the knowledge base, each with its chart of accounts code and similarity score. The proposed code has already been chosen from those references. Explain in two or three sentences why the proposed code fits the client account, citing the reference that supports it. If the references disagree or the fit is weak, say what a reviewer should check before approving.`

const anomalyInstructions = `You are a quality-of-earnings analyst reviewing monthly P&L movements.

You are given a P&L line, its amount in the current period, the trailing average over the preceding periods, and the computed variance multiple and severity. Write a one or two sentence summary a reviewer can read at a glance. State the movement plainly, and when the line looks like a one-time or owner-related expense, note that it may be an EBITDA addback. Do not restate the numbers with different rounding.`

const auditInstructions = `You are an accountant on a due-diligence engagement drafting a question for the client about one general-ledger transaction.

You are given the client, the transaction (date, account, vendor, description, amount, mapped account) and the reason it was flagged. Ask politely for the clarification or documentation that would resolve the flag, and be specific about what is needed.`

const mappingSpec = `Respond with plain text only, no markdown and no JSON.
Keep the response under 80 words.
Never propose a different chart of accounts code than the one given.`

const anomalySpec = `Respond with plain text only, no markdown and no JSON.
Keep the response under 60 words.
Never change the severity or the numbers you are given.`

const auditSpec = `Respond with the question only, two or three sentences.
No greeting, signature, subject line or markdown.`

var instructions = map[Stage]string{
	StageMapping: mappingInstructions,
	StageAnomaly: anomalyInstructions,
	StageAudit:   auditInstructions,
}

var specs = map[Stage]string{
	StageMapping: mappingSpec,
	StageAnomaly: anomalySpec,
	StageAudit:   auditSpec,
}

// Instructions returns the built-in instructions for a stage.
func Instructions(stage Stage) (string, error) {
	text, ok := instructions[stage]
	if !ok {
		return "", ErrInvalidStage
	}
	return text, nil
}

// Spec returns the output constraints for a stage. Specs are not overridable;
// they are appended to whatever instructions are in effect.
func Spec(stage Stage) (string, error) {
	text, ok := specs[stage]
	if !ok {
		return "", ErrInvalidStage
	}
	return text, nil
}

// Compose joins instructions and the stage spec into a single system prompt.
func Compose(stage Stage, instructions string) (string, error) {
	spec, err := Spec(stage)
	if err != nil {
		return "", err
	}
	return instructions + "\n\n" + spec, nil
}
