package prompt

var seqRecTemplates = []Template{
	{
		Instruction: "The user has interacted with items {inters} in chronological order. Can you predict the next possible item that the user may expect?",
		Response:    "{item}",
	},
	{
		Instruction: "I find the user's historical interactive items: {inters}, and I want to know what next item the user needs. Can you help me decide?",
		Response:    "{item}",
	},
	{
		Instruction: "Here are the user's historical interactions: {inters}, try to recommend another item to the user. Note that the historical interactions are arranged in chronological order.",
		Response:    "{item}",
	},
	{
		Instruction: "Based on the items that the user has interacted with: {inters}, can you determine what item would be recommended to the user next?",
		Response:    "{item}",
	},
	{
		Instruction: "The user has interacted with the following items in order: {inters}. What else do you think the user needs?",
		Response:    "{item}",
	},
	{
		Instruction: "Here is the item interaction history of the user: {inters}, what to recommend to the user next?",
		Response:    "{item}",
	},
	{
		Instruction: "Which item would the user be likely to interact with next after interacting with items {inters}?",
		Response:    "{item}",
	},
	{
		Instruction: "By analyzing the user's historical interactions with items {inters}, what is the next expected interaction item?",
		Response:    "{item}",
	},
}

var itemSearchTemplates = []Template{
	{
		Instruction: "Here is the historical interactions of a user: {inters}. And the user's preferences are: {explicit_preference}. Now the user wants a new item and searches for: \"{user_related_intention}\". Please select a suitable item that matches the search intent.",
		Response:    "{item}",
	},
	{
		Instruction: "The user has the following preferences: {explicit_preference}. The user is searching for: \"{item_related_intention}\". Which item best fits the search?",
		Response:    "{item}",
	},
	{
		Instruction: "Given the user's purchase history {inters} and the query \"{user_related_intention}\", recommend the item the user is most likely looking for.",
		Response:    "{item}",
	},
	{
		Instruction: "A user with preferences {explicit_preference} issued the query \"{item_related_intention}\". Please retrieve the matching item.",
		Response:    "{item}",
	},
}

var fusionSeqRecTemplates = []Template{
	{
		Instruction: "The user has sequentially interacted with items {inters}. Can you recommend the next item for the user?",
		Response:    "{item}",
	},
	{
		Instruction: "Given the titles of the items the user interacted with in order: {inters}, predict the next item the user will interact with.",
		Response:    "{item}",
	},
	{
		Instruction: "The user's recent history, listed by item title: {inters}. Which item would the user choose next?",
		Response:    "{item}",
	},
}
